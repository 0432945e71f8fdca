package event

import (
	"time"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// Event type names. Convention: "category.action".
const (
	TypeDependencyAdded      = "dependency.added"
	TypeDependencyRemoved    = "dependency.removed"
	TypeTaskReady            = "task.ready"
	TypeTaskSplit            = "task.split"
	TypeTaskStatusChanged    = "task.status_changed"
	TypeTaskAssigned         = "task.assigned"
	TypeTasksBulkReassigned  = "tasks.bulk_reassigned"
	TypeWorkerUnavailability = "worker.unavailability_handled"
	TypeWorkloadBalanced     = "workload.balanced"
	TypeEmergencyRedistrib   = "emergency_redistribution.completed"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// TenantID returns the tenant the event belongs to.
	TenantID() string
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	tenantID  string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) TenantID() string     { return e.tenantID }

func newBaseEvent(eventType, tenantID string) baseEvent {
	return baseEvent{
		eventType: eventType,
		tenantID:  tenantID,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Dependency Events
// -----------------------------------------------------------------------------

// DependencyAddedEvent is emitted after an edge task -> dependsOn is stored.
type DependencyAddedEvent struct {
	baseEvent
	TaskID      string
	DependsOnID string
	WorkOrderID string
}

// NewDependencyAddedEvent creates a DependencyAddedEvent.
func NewDependencyAddedEvent(tenantID, workOrderID, taskID, dependsOnID string) DependencyAddedEvent {
	return DependencyAddedEvent{
		baseEvent:   newBaseEvent(TypeDependencyAdded, tenantID),
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		WorkOrderID: workOrderID,
	}
}

// DependencyRemovedEvent is emitted after an edge is deleted.
type DependencyRemovedEvent struct {
	baseEvent
	TaskID      string
	DependsOnID string
	WorkOrderID string
}

// NewDependencyRemovedEvent creates a DependencyRemovedEvent.
func NewDependencyRemovedEvent(tenantID, workOrderID, taskID, dependsOnID string) DependencyRemovedEvent {
	return DependencyRemovedEvent{
		baseEvent:   newBaseEvent(TypeDependencyRemoved, tenantID),
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		WorkOrderID: workOrderID,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskReadyEvent is emitted when every dependency of a task has completed
// and the task was promoted from PENDING to READY.
type TaskReadyEvent struct {
	baseEvent
	Task task.Task
	// TriggeredBy is the task whose completion or edge change caused the
	// promotion. Empty when readiness was re-evaluated directly.
	TriggeredBy string
}

// NewTaskReadyEvent creates a TaskReadyEvent carrying a snapshot of t.
func NewTaskReadyEvent(tenantID string, t *task.Task, triggeredBy string) TaskReadyEvent {
	return TaskReadyEvent{
		baseEvent:   newBaseEvent(TypeTaskReady, tenantID),
		Task:        *t.Clone(),
		TriggeredBy: triggeredBy,
	}
}

// TaskSplitEvent is emitted when a task is replaced by subtasks.
type TaskSplitEvent struct {
	baseEvent
	Original task.Task
	Subtasks []task.Task
}

// NewTaskSplitEvent creates a TaskSplitEvent.
func NewTaskSplitEvent(tenantID string, original *task.Task, subtasks []*task.Task) TaskSplitEvent {
	subs := make([]task.Task, len(subtasks))
	for i, s := range subtasks {
		subs[i] = *s.Clone()
	}
	return TaskSplitEvent{
		baseEvent: newBaseEvent(TypeTaskSplit, tenantID),
		Original:  *original.Clone(),
		Subtasks:  subs,
	}
}

// TaskStatusChangedEvent is emitted for caller-requested status changes.
type TaskStatusChangedEvent struct {
	baseEvent
	TaskID string
	From   task.Status
	To     task.Status
}

// NewTaskStatusChangedEvent creates a TaskStatusChangedEvent.
func NewTaskStatusChangedEvent(tenantID, taskID string, from, to task.Status) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		baseEvent: newBaseEvent(TypeTaskStatusChanged, tenantID),
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Assignment Events
// -----------------------------------------------------------------------------

// TaskAssignedEvent is emitted when the assignment engine binds a worker.
type TaskAssignedEvent struct {
	baseEvent
	TaskID           string
	WorkerID         string
	PreviousWorkerID string
	Method           task.Method
	AssignmentID     string
}

// NewTaskAssignedEvent creates a TaskAssignedEvent.
func NewTaskAssignedEvent(tenantID string, a *task.Assignment, previous string) TaskAssignedEvent {
	return TaskAssignedEvent{
		baseEvent:        newBaseEvent(TypeTaskAssigned, tenantID),
		TaskID:           a.TaskID,
		WorkerID:         a.WorkerID,
		PreviousWorkerID: previous,
		Method:           a.Method,
		AssignmentID:     a.ID,
	}
}

// BatchSummary is the aggregate carried by every reassignment event.
type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	TaskIDs   []string // tasks that were moved
}

// TasksBulkReassignedEvent summarizes a bulk reassignment.
type TasksBulkReassignedEvent struct {
	baseEvent
	BatchSummary
	TargetWorkerID string
}

// NewTasksBulkReassignedEvent creates a TasksBulkReassignedEvent.
func NewTasksBulkReassignedEvent(tenantID, targetWorkerID string, summary BatchSummary) TasksBulkReassignedEvent {
	return TasksBulkReassignedEvent{
		baseEvent:      newBaseEvent(TypeTasksBulkReassigned, tenantID),
		BatchSummary:   summary,
		TargetWorkerID: targetWorkerID,
	}
}

// WorkerUnavailabilityHandledEvent summarizes redistribution of an
// unavailable worker's tasks.
type WorkerUnavailabilityHandledEvent struct {
	baseEvent
	BatchSummary
	WorkerID string
	Reason   string
}

// NewWorkerUnavailabilityHandledEvent creates a WorkerUnavailabilityHandledEvent.
func NewWorkerUnavailabilityHandledEvent(tenantID, workerID, reason string, summary BatchSummary) WorkerUnavailabilityHandledEvent {
	return WorkerUnavailabilityHandledEvent{
		baseEvent:    newBaseEvent(TypeWorkerUnavailability, tenantID),
		BatchSummary: summary,
		WorkerID:     workerID,
		Reason:       reason,
	}
}

// WorkloadBalancedEvent summarizes a balancing pass.
type WorkloadBalancedEvent struct {
	baseEvent
	BatchSummary
	WorkOrderID string
	// Before and After map worker ID to active task count.
	Before map[string]int
	After  map[string]int
}

// NewWorkloadBalancedEvent creates a WorkloadBalancedEvent.
func NewWorkloadBalancedEvent(tenantID, workOrderID string, summary BatchSummary, before, after map[string]int) WorkloadBalancedEvent {
	return WorkloadBalancedEvent{
		baseEvent:    newBaseEvent(TypeWorkloadBalanced, tenantID),
		BatchSummary: summary,
		WorkOrderID:  workOrderID,
		Before:       before,
		After:        after,
	}
}

// EmergencyRedistributionEvent summarizes an emergency redistribution.
type EmergencyRedistributionEvent struct {
	baseEvent
	BatchSummary
	Reason string
}

// NewEmergencyRedistributionEvent creates an EmergencyRedistributionEvent.
func NewEmergencyRedistributionEvent(tenantID, reason string, summary BatchSummary) EmergencyRedistributionEvent {
	return EmergencyRedistributionEvent{
		baseEvent:    newBaseEvent(TypeEmergencyRedistrib, tenantID),
		BatchSummary: summary,
		Reason:       reason,
	}
}
