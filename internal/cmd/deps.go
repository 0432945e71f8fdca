package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/dependency"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage task dependencies",
	Long: `Add, remove and inspect dependency edges between tasks of a work order.

An edge "A depends on B" means A cannot start until B is COMPLETED. Edges
that would create a cycle are rejected.`,
}

var depsAddCmd = &cobra.Command{
	Use:   "add <task> <depends-on>",
	Short: "Make a task depend on another",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsAdd,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove <task> <depends-on>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsRemove,
}

var depsListCmd = &cobra.Command{
	Use:   "list <task>",
	Short: "List a task's dependencies or dependents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsList,
}

var depsValidateCmd = &cobra.Command{
	Use:   "validate <work-order>",
	Short: "Check a work order for cycles and dangling references",
	Long: `Report cycles, references to unknown tasks, and which open tasks are
ready or blocked. Exits with an error when the graph is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runDepsValidate,
}

var criticalPathCmd = &cobra.Command{
	Use:     "critical-path <work-order>",
	Aliases: []string{"cp"},
	Short:   "Compute the critical path of a work order",
	Long: `Run the critical path method over a work order using each task's
estimated hours. Prints the critical chain, the minimum duration and, with
--schedule, the earliest/latest start and slack of every task.`,
	Args: cobra.ExactArgs(1),
	RunE: runCriticalPath,
}

var (
	depsDependents bool
	depsTransitive bool
	cpSchedule     bool
)

func init() {
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(criticalPathCmd)
	depsCmd.AddCommand(depsAddCmd)
	depsCmd.AddCommand(depsRemoveCmd)
	depsCmd.AddCommand(depsListCmd)
	depsCmd.AddCommand(depsValidateCmd)

	depsListCmd.Flags().BoolVar(&depsDependents, "dependents", false, "List tasks that depend on this one instead")
	depsListCmd.Flags().BoolVar(&depsTransitive, "transitive", false, "Follow edges transitively")
	criticalPathCmd.Flags().BoolVar(&cpSchedule, "schedule", false, "Show the timing of every task")
}

func runDepsAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, events, err := a.deps.AddDependency(ctx, a.tenant, args[0], args[1])
		if err != nil {
			return err
		}
		a.publish(events)
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s -> %s\n", successStyle.Render("Added"), res.TaskID, res.DependsOnID)
			if res.StatusChanged {
				fmt.Fprintf(w, "%s is now %s\n", res.TaskID, statusText(res.Task.Status))
			}
			a.printEvents(w)
		})
	})
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, events, err := a.deps.RemoveDependency(ctx, a.tenant, args[0], args[1])
		if err != nil {
			return err
		}
		a.publish(events)
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s -> %s\n", successStyle.Render("Removed"), res.TaskID, res.DependsOnID)
			if res.StatusChanged {
				fmt.Fprintf(w, "%s is now %s\n", res.TaskID, statusText(res.Task.Status))
			}
			a.printEvents(w)
		})
	})
}

func runDepsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var (
			tasks []*task.Task
			err   error
		)
		if depsDependents {
			tasks, err = a.deps.Dependents(ctx, a.tenant, args[0], depsTransitive)
		} else {
			tasks, err = a.deps.Dependencies(ctx, a.tenant, args[0], depsTransitive)
		}
		if err != nil {
			return err
		}
		return a.emit(tasks, func(w io.Writer) {
			fmt.Fprintln(w, renderTasks(tasks))
		})
	})
}

func runDepsValidate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.deps.ValidateDependencies(ctx, a.tenant, args[0])
		if err != nil {
			return err
		}
		if err := a.emit(report, func(w io.Writer) { printValidation(w, report) }); err != nil {
			return err
		}
		if !report.IsValid {
			return fmt.Errorf("work order %s has %d dependency cycle(s)", report.WorkOrderID, len(report.Cycles))
		}
		return nil
	})
}

func printValidation(w io.Writer, report *dependency.ValidationReport) {
	fmt.Fprintln(w, titleStyle.Render("Work order "+report.WorkOrderID))
	if report.IsValid {
		fmt.Fprintln(w, successStyle.Render("No cycles"))
	} else {
		for _, c := range report.Cycles {
			fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Cycle:"), strings.Join(c, " -> "))
		}
	}
	for _, issue := range report.Issues {
		fmt.Fprintf(w, "%s %s\n", warningStyle.Render("Issue:"), issue)
	}

	fmt.Fprintf(w, "\nReady (%d):\n", len(report.Ready))
	for _, t := range report.Ready {
		fmt.Fprintf(w, "  %s %s\n", t.ID, mutedStyle.Render(t.Name))
	}
	fmt.Fprintf(w, "Blocked (%d):\n", len(report.Blocked))
	for _, b := range report.Blocked {
		fmt.Fprintf(w, "  %s waiting on %s\n", b.Task.ID, strings.Join(b.IncompleteDependencies, ", "))
	}
}

func runCriticalPath(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.deps.CriticalPath(ctx, a.tenant, args[0])
		if err != nil {
			return err
		}
		return a.emit(res, func(w io.Writer) {
			fmt.Fprintln(w, titleStyle.Render("Critical path of "+res.WorkOrderID))
			fmt.Fprintf(w, "Duration: %s hours\n", formatHours(res.Duration))
			fmt.Fprintf(w, "Path: %s\n", strings.Join(task.IDs(res.Path), " -> "))
			if !cpSchedule || res.Schedule == nil {
				return
			}

			t := newTable("TASK", "HOURS", "ES", "EF", "LS", "LF", "SLACK", "CRITICAL")
			for _, id := range res.Schedule.Order {
				tm := res.Schedule.Timings[id]
				critical := ""
				if tm.Critical {
					critical = errorStyle.Render("yes")
				}
				t.Row(id, formatHours(tm.Duration),
					formatHours(tm.EarliestStart), formatHours(tm.EarliestFinish),
					formatHours(tm.LatestStart), formatHours(tm.LatestFinish),
					formatHours(tm.Slack), critical)
			}
			fmt.Fprintln(w, t.Render())
		})
	})
}
