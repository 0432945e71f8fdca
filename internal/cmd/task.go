package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/dependency"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and change tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show a task and its assignment history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task> <status>",
	Short: "Move a task to a new status",
	Long: `Move a task through its lifecycle:

  PENDING -> CANCELLED
  READY -> IN_PROGRESS | CANCELLED
  IN_PROGRESS -> COMPLETED | FAILED | PAUSED | CANCELLED
  PAUSED -> IN_PROGRESS | CANCELLED

READY is derived from dependencies and cannot be set directly. Completing a
task readies every dependent whose dependencies are now all COMPLETED.`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskStatus,
}

var taskReadinessCmd = &cobra.Command{
	Use:   "readiness <task>",
	Short: "Re-evaluate whether a task is ready",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskReadiness,
}

var taskSplitCmd = &cobra.Command{
	Use:   "split <task>",
	Short: "Split a task into sequential subtasks",
	Long: `Replace a task with a chain of subtasks read from a YAML file:

  - name: Weld left side
    estimatedHours: 2
  - name: Weld right side
    estimatedHours: 2
    assignee: w2

The original is cancelled. With --preserve the first subtask inherits the
original's dependencies and the original's dependents move to the last
subtask.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskSplit,
}

var (
	listWorkOrder string
	listStatuses  []string
	listAssignee  string
	listOpen      bool
	splitFile     string
	splitPreserve bool
	statusQuiet   bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskReadinessCmd)
	taskCmd.AddCommand(taskSplitCmd)

	taskListCmd.Flags().StringVarP(&listWorkOrder, "work-order", "w", "", "Only tasks of this work order")
	taskListCmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Only tasks in these statuses")
	taskListCmd.Flags().StringVarP(&listAssignee, "assignee", "a", "", "Only tasks assigned to this worker")
	taskListCmd.Flags().BoolVar(&listOpen, "open", false, "Hide COMPLETED, FAILED and CANCELLED tasks")

	taskSplitCmd.Flags().StringVarP(&splitFile, "file", "f", "", "YAML file listing the subtasks (required)")
	taskSplitCmd.Flags().BoolVar(&splitPreserve, "preserve", true, "Carry dependencies over to the subtask chain")
	_ = taskSplitCmd.MarkFlagRequired("file")

	taskStatusCmd.Flags().BoolVar(&statusQuiet, "quiet", false, "Do not list readied dependents")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	f := task.Filter{
		WorkOrderID:     listWorkOrder,
		AssigneeID:      listAssignee,
		ExcludeTerminal: listOpen,
	}
	for _, s := range listStatuses {
		st, err := task.ParseStatus(s)
		if err != nil {
			return err
		}
		f.Statuses = append(f.Statuses, st)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		tasks, err := a.store.ListTasks(ctx, a.tenant, f)
		if err != nil {
			return err
		}
		return a.emit(tasks, func(w io.Writer) {
			fmt.Fprintln(w, renderTasks(tasks))
		})
	})
}

// taskDetail is the JSON form of 'task show'.
type taskDetail struct {
	Task        *task.Task         `json:"task"`
	Assignments []*task.Assignment `json:"assignments"`
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		t, err := a.store.Task(ctx, a.tenant, args[0])
		if err != nil {
			return err
		}
		history, err := a.store.Assignments(ctx, a.tenant, t.ID)
		if err != nil {
			return err
		}

		return a.emit(taskDetail{Task: t, Assignments: history}, func(w io.Writer) {
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s  %s", t.ID, t.Name)))
			fmt.Fprintf(w, "Work order:  %s\n", t.WorkOrderID)
			fmt.Fprintf(w, "Status:      %s\n", statusText(t.Status))
			fmt.Fprintf(w, "Priority:    %s\n", t.Priority)
			fmt.Fprintf(w, "Hours:       %s\n", formatHours(t.EstimatedHours))
			fmt.Fprintf(w, "Assignee:    %s\n", orDash(t.AssigneeID))
			fmt.Fprintf(w, "Depends on:  %s\n", orDash(strings.Join(t.DependsOn, ", ")))
			if len(t.RequiredSkills) > 0 {
				fmt.Fprintf(w, "Skills:      %s\n", strings.Join(t.RequiredSkills, ", "))
			}
			if t.DueDate != nil {
				fmt.Fprintf(w, "Due:         %s\n", t.DueDate.Format("2006-01-02 15:04"))
			}
			if t.SplitFrom != "" {
				fmt.Fprintf(w, "Split from:  %s\n", t.SplitFrom)
			}
			if t.Notes != "" {
				fmt.Fprintf(w, "Notes:\n%s\n", mutedStyle.Render(t.Notes))
			}

			if len(history) == 0 {
				return
			}
			fmt.Fprintln(w)
			tbl := newTable("WORKER", "STATUS", "METHOD", "REASON", "CREATED")
			for _, asg := range history {
				tbl.Row(asg.WorkerID, string(asg.Status), string(asg.Method), asg.Reason,
					asg.CreatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(w, tbl.Render())
		})
	})
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	to, err := task.ParseStatus(args[1])
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, events, err := a.deps.TransitionStatus(ctx, a.tenant, args[0], to)
		if err != nil {
			return err
		}
		a.publish(events)
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %s -> %s\n", res.Task.ID, statusText(res.From), statusText(res.To))
			if !statusQuiet && len(res.Promoted) > 0 {
				fmt.Fprintf(w, "Now ready: %s\n", strings.Join(task.IDs(res.Promoted), ", "))
			}
		})
	})
}

func runTaskReadiness(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, events, err := a.deps.UpdateReadiness(ctx, a.tenant, args[0])
		if err != nil {
			return err
		}
		a.publish(events)
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s is %s\n", res.Task.ID, statusText(res.Task.Status))
			if len(res.Promoted) > 0 {
				fmt.Fprintf(w, "Promoted: %s\n", strings.Join(task.IDs(res.Promoted), ", "))
			}
			if len(res.Demoted) > 0 {
				fmt.Fprintf(w, "Demoted: %s\n", strings.Join(task.IDs(res.Demoted), ", "))
			}
		})
	})
}

// readSubtaskSpecs decodes a YAML list of subtasks.
func readSubtaskSpecs(path string) ([]dependency.SubtaskSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var specs []dependency.SubtaskSpec
	if err := dec.Decode(&specs); err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError("subtask file is empty").WithField("subtasks")
		}
		return nil, errors.NewValidationError(fmt.Sprintf("invalid subtask file: %v", err)).WithCause(err)
	}
	return specs, nil
}

func runTaskSplit(cmd *cobra.Command, args []string) error {
	specs, err := readSubtaskSpecs(splitFile)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, events, err := a.deps.SplitTask(ctx, a.tenant, args[0], specs, splitPreserve)
		if err != nil {
			return err
		}
		a.publish(events)
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s into %d subtasks\n", successStyle.Render("Split"), res.Original.ID, len(res.Subtasks))
			fmt.Fprintln(w, renderTasks(res.Subtasks))
			if len(res.Rewired) > 0 {
				fmt.Fprintf(w, "Rewired dependents: %s\n", strings.Join(res.Rewired, ", "))
			}
		})
	})
}
