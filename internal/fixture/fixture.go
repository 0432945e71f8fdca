// Package fixture reads and writes work orders as YAML documents.
//
// A document carries one tenant's workers and tasks:
//
//	tenant: acme
//	workOrder: wo-1
//	workers:
//	  - id: w1
//	    name: Ada
//	    active: true
//	    skills: [weld]
//	tasks:
//	  - id: cut
//	    name: Cut stock
//	    estimatedHours: 2
//	  - id: weld
//	    name: Weld frame
//	    priority: HIGH
//	    dependsOn: [cut]
//	    assignee: w1
//
// Tasks without a work order inherit the document's. Missing statuses
// default to PENDING and missing priorities to NORMAL. Dependencies must
// name a task of the same work order, either in the document or already
// stored, and must not close a cycle.
package fixture

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/graph"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// ImportReason is recorded on assignments created from a document.
const ImportReason = "imported"

// Document is the YAML form of a work order.
type Document struct {
	Tenant    string         `yaml:"tenant"`
	WorkOrder string         `yaml:"workOrder,omitempty"`
	Workers   []*task.Worker `yaml:"workers,omitempty"`
	Tasks     []*task.Task   `yaml:"tasks"`
}

// Summary counts what Import wrote.
type Summary struct {
	Tenant      string `json:"tenant"`
	Tasks       int    `json:"tasks"`
	Workers     int    `json:"workers"`
	Assignments int    `json:"assignments"`
}

// Decode parses a document. Unknown keys are rejected.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError("empty fixture document")
		}
		return nil, errors.NewValidationError(fmt.Sprintf("invalid fixture: %v", err)).WithCause(err)
	}
	return &doc, nil
}

// ReadFile decodes the document at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Encode writes doc as YAML with two-space indentation.
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return enc.Close()
}

// Normalize fills defaults and checks the document for missing IDs,
// duplicates, unknown statuses, self or repeated dependencies and assignees
// that are not listed workers.
// Creation times are spread from now so the document order is preserved.
func (d *Document) Normalize(now time.Time) error {
	if d.Tenant == "" {
		return errors.NewValidationError("tenant is required").WithField("tenant")
	}

	workers := make(map[string]bool, len(d.Workers))
	for i, w := range d.Workers {
		if w == nil || w.ID == "" {
			return errors.NewValidationError(fmt.Sprintf("worker %d has no id", i)).WithField("workers")
		}
		if workers[w.ID] {
			return errors.NewValidationError("duplicate worker").WithField("workers").WithValue(w.ID)
		}
		workers[w.ID] = true
	}

	seen := make(map[string]bool, len(d.Tasks))
	for i, t := range d.Tasks {
		if t == nil || t.ID == "" {
			return errors.NewValidationError(fmt.Sprintf("task %d has no id", i)).WithField("tasks")
		}
		if seen[t.ID] {
			return errors.NewValidationError("duplicate task").WithField("tasks").WithValue(t.ID)
		}
		seen[t.ID] = true

		if t.WorkOrderID == "" {
			t.WorkOrderID = d.WorkOrder
		}
		if t.WorkOrderID == "" {
			return errors.NewValidationError("task has no work order").WithField("workOrder").WithValue(t.ID)
		}
		if t.Status == "" {
			t.Status = task.StatusPending
		}
		if !t.Status.IsValid() {
			return errors.NewValidationError("unknown status").WithField("status").WithValue(string(t.Status))
		}
		if t.Priority == 0 {
			t.Priority = task.PriorityNormal
		}
		if t.EstimatedHours < 0 {
			return errors.NewValidationError("estimated hours must not be negative").
				WithField("estimatedHours").
				WithValue(t.ID)
		}
		if t.AssigneeID != "" && len(workers) > 0 && !workers[t.AssigneeID] {
			return errors.NewValidationError("assignee is not a listed worker").
				WithField("assignee").
				WithValue(t.AssigneeID)
		}
		for j, dep := range t.DependsOn {
			if dep == t.ID {
				return errors.NewValidationError("task cannot depend on itself").
					WithField("dependsOn").
					WithValue(dep).
					WithCause(errors.ErrSelfDependency)
			}
			if slices.Contains(t.DependsOn[:j], dep) {
				return errors.NewValidationError("dependency already exists").
					WithField("dependsOn").
					WithValue(dep).
					WithCause(errors.ErrDuplicateDependency)
			}
		}
		if t.Number == "" {
			t.Number = t.ID
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
	}
	return nil
}

// Import normalizes doc and writes its workers, tasks and assignment
// changes in one unit of work. A task that already has an active assignment
// keeps it when the document names the same worker; otherwise the record is
// superseded, or closed when the document leaves the task unassigned or
// finished.
func Import(ctx context.Context, s store.Store, doc *Document, now time.Time) (*Summary, error) {
	if err := doc.Normalize(now); err != nil {
		return nil, err
	}
	if err := checkEdges(ctx, s, doc); err != nil {
		return nil, err
	}

	var (
		assignments []*task.Assignment
		created     int
	)
	for _, t := range doc.Tasks {
		current, err := s.ActiveAssignment(ctx, doc.Tenant, t.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "load assignment of %s", t.ID)
		}
		open := t.AssigneeID != "" && !t.Status.IsTerminal()

		var next *task.Assignment
		switch {
		case current != nil && open && current.WorkerID == t.AssigneeID:
			if t.Status == task.StatusInProgress && current.Status != task.AssignmentInProgress {
				current.Status = task.AssignmentInProgress
				current.UpdatedAt = now
				assignments = append(assignments, current)
			}
			continue
		case current != nil && open:
			next = current.Supersede(t.AssigneeID, task.MethodManual, ImportReason, now)
			assignments = append(assignments, current)
		case current != nil:
			current.Status = task.AssignmentReassigned
			if t.Status.IsTerminal() {
				current.Status = task.AssignmentCompleted
			}
			current.UpdatedAt = now
			assignments = append(assignments, current)
			continue
		case open:
			next = task.NewAssignment(t.ID, t.AssigneeID, task.MethodManual, ImportReason, now)
		default:
			continue
		}
		if t.Status == task.StatusInProgress {
			next.Status = task.AssignmentInProgress
		}
		assignments = append(assignments, next)
		created++
	}

	err := s.Update(ctx, doc.Tenant, func(tx store.Tx) error {
		tx.PutWorkers(doc.Workers...)
		tx.PutTasks(doc.Tasks...)
		tx.PutAssignments(assignments...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "import fixture")
	}

	return &Summary{
		Tenant:      doc.Tenant,
		Tasks:       len(doc.Tasks),
		Workers:     len(doc.Workers),
		Assignments: created,
	}, nil
}

// checkEdges resolves every dependency against the document and the stored
// tasks. Unknown targets and edges across work orders are rejected, and so
// is any cycle in a work order once the document is applied over it.
func checkEdges(ctx context.Context, r store.Reader, doc *Document) error {
	byID := make(map[string]*task.Task, len(doc.Tasks))
	for _, t := range doc.Tasks {
		byID[t.ID] = t
	}

	var external []string
	for _, t := range doc.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok && !slices.Contains(external, dep) {
				external = append(external, dep)
			}
		}
	}
	stored, err := r.Tasks(ctx, doc.Tenant, external)
	if err != nil {
		return errors.Wrap(err, "load dependencies")
	}
	known := make(map[string]*task.Task, len(byID)+len(stored))
	for _, t := range stored {
		known[t.ID] = t
	}
	for id, t := range byID {
		known[id] = t
	}

	var workOrders []string
	for _, t := range doc.Tasks {
		for _, dep := range t.DependsOn {
			target, ok := known[dep]
			if !ok {
				return errors.NewNotFoundError("task", dep)
			}
			if target.WorkOrderID != t.WorkOrderID {
				return errors.NewValidationError("dependency must be within the same work order").
					WithField("dependsOn").
					WithValue(dep).
					WithCause(errors.ErrCrossScope)
			}
		}
		if !slices.Contains(workOrders, t.WorkOrderID) {
			workOrders = append(workOrders, t.WorkOrderID)
		}
	}

	for _, wo := range workOrders {
		existing, err := r.ListTasks(ctx, doc.Tenant, task.Filter{WorkOrderID: wo})
		if err != nil {
			return errors.Wrapf(err, "load work order %s", wo)
		}
		merged := slices.DeleteFunc(existing, func(t *task.Task) bool {
			_, replaced := byID[t.ID]
			return replaced
		})
		for _, t := range doc.Tasks {
			if t.WorkOrderID == wo {
				merged = append(merged, t)
			}
		}
		if cycles := graph.Build(merged).FindCycles(); len(cycles) > 0 {
			return errors.NewCycleError(cycles[0]).
				WithMessage(fmt.Sprintf("work order %s would contain a dependency cycle", wo))
		}
	}
	return nil
}

// Export builds a document from the stored tasks of one work order, or of
// the whole tenant when workOrderID is empty, together with the tenant's
// active workers.
func Export(ctx context.Context, r store.Reader, workers store.WorkerDirectory, tenantID, workOrderID string) (*Document, error) {
	tasks, err := r.ListTasks(ctx, tenantID, task.Filter{WorkOrderID: workOrderID})
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	ws, err := workers.ActiveWorkers(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "list workers")
	}
	return &Document{
		Tenant:    tenantID,
		WorkOrder: workOrderID,
		Workers:   ws,
		Tasks:     tasks,
	}, nil
}
