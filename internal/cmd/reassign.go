package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/reassign"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var reassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Move tasks between workers in batches",
	Long: `Batch reassignment operations. Each task moves in its own transaction,
so one failure does not stop the batch; every task gets a result line.`,
}

var reassignBulkCmd = &cobra.Command{
	Use:   "bulk <task>...",
	Short: "Move the listed tasks to one worker",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReassignBulk,
}

var reassignUnavailableCmd = &cobra.Command{
	Use:   "unavailable <worker>",
	Short: "Hand an unavailable worker's open tasks to others",
	Long: `Reassign every open task of a worker, most urgent first. Replacements
are chosen with --strategy (default least_loaded). Tasks with no eligible
replacement stay where they are and are reported as skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runReassignUnavailable,
}

var reassignBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Move waiting tasks from overloaded to underloaded workers",
	Long: `Move PENDING and READY tasks, least urgent first, from workers above
--max active tasks to workers below it. Started work is never moved.`,
	Args: cobra.NoArgs,
	RunE: runReassignBalance,
}

var reassignEmergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Redistribute urgent work to the best available workers",
	Long: `Send matching open tasks, most urgent first, to the worker with the
fewest urgent tasks. At least one of --priority, --due-within or
--work-center is required.`,
	Args: cobra.NoArgs,
	RunE: runReassignEmergency,
}

var (
	bulkTo       string
	bulkFrom     string
	bulkReason   string
	unavStrategy string
	unavReason   string
	balWorkOrder string
	balDueWithin float64
	balMax       int
	balSkills    bool
	emPriorities []string
	emDueWithin  float64
	emWorkCenter string
	emReason     string
)

func init() {
	rootCmd.AddCommand(reassignCmd)
	reassignCmd.AddCommand(reassignBulkCmd)
	reassignCmd.AddCommand(reassignUnavailableCmd)
	reassignCmd.AddCommand(reassignBalanceCmd)
	reassignCmd.AddCommand(reassignEmergencyCmd)

	reassignBulkCmd.Flags().StringVar(&bulkTo, "to", "", "Target worker (required)")
	reassignBulkCmd.Flags().StringVar(&bulkFrom, "from", "", "Only move tasks currently assigned to this worker")
	reassignBulkCmd.Flags().StringVar(&bulkReason, "reason", "", "Reason recorded on each assignment")
	_ = reassignBulkCmd.MarkFlagRequired("to")

	reassignUnavailableCmd.Flags().StringVarP(&unavStrategy, "strategy", "s", string(task.MethodLeastLoaded), "Strategy for choosing replacements")
	reassignUnavailableCmd.Flags().StringVar(&unavReason, "reason", "", "Why the worker is unavailable")

	reassignBalanceCmd.Flags().StringVarP(&balWorkOrder, "work-order", "w", "", "Only balance this work order")
	reassignBalanceCmd.Flags().Float64Var(&balDueWithin, "due-within", 0, "Only move tasks due within this many hours")
	reassignBalanceCmd.Flags().IntVar(&balMax, "max", 0, "Active task threshold (default balancing.max_tasks_per_worker)")
	reassignBalanceCmd.Flags().BoolVar(&balSkills, "require-skills", false, "Only move tasks to workers with every required skill (default balancing.require_skill_match)")

	reassignEmergencyCmd.Flags().StringSliceVarP(&emPriorities, "priority", "p", nil, "Priorities to redistribute, e.g. URGENT,CRITICAL")
	reassignEmergencyCmd.Flags().Float64Var(&emDueWithin, "due-within", 0, "Tasks due within this many hours")
	reassignEmergencyCmd.Flags().StringVar(&emWorkCenter, "work-center", "", "Tasks of this work center")
	reassignEmergencyCmd.Flags().StringVar(&emReason, "reason", "", "Reason recorded on each assignment")
}

// printBatch publishes the batch events and writes its results.
func (a *app) printBatch(results []reassign.Result, events []event.Event) error {
	a.publish(events)
	return a.emit(results, func(w io.Writer) {
		fmt.Fprintln(w, renderResults(results))
		a.printEvents(w)
	})
}

func runReassignBulk(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		results, events, err := a.reassign.BulkReassign(ctx, a.tenant, reassign.BulkRequest{
			TaskIDs:      args,
			FromWorkerID: bulkFrom,
			ToWorkerID:   bulkTo,
			Reason:       bulkReason,
		})
		if err != nil {
			return err
		}
		return a.printBatch(results, events)
	})
}

func runReassignUnavailable(cmd *cobra.Command, args []string) error {
	method, ok := assignment.ParseMethod(unavStrategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q", unavStrategy)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		results, events, err := a.reassign.HandleWorkerUnavailability(ctx, a.tenant, reassign.UnavailabilityRequest{
			WorkerID: args[0],
			Method:   method,
			Reason:   unavReason,
		})
		if err != nil {
			return err
		}
		return a.printBatch(results, events)
	})
}

func runReassignBalance(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		req := reassign.BalanceRequest{
			WorkOrderID:       balWorkOrder,
			MaxTasksPerWorker: a.cfg.Balancing.MaxTasksPerWorker,
			RequireSkillMatch: a.cfg.Balancing.RequireSkillMatch,
		}
		if cmd.Flags().Changed("max") {
			req.MaxTasksPerWorker = balMax
		}
		if cmd.Flags().Changed("require-skills") {
			req.RequireSkillMatch = balSkills
		}
		if balDueWithin > 0 {
			before := a.engine.Now().Add(time.Duration(balDueWithin * float64(time.Hour)))
			req.DueBefore = &before
		}

		results, events, err := a.reassign.BalanceWorkload(ctx, a.tenant, req)
		if err != nil {
			return err
		}
		return a.printBatch(results, events)
	})
}

func runReassignEmergency(cmd *cobra.Command, args []string) error {
	req := reassign.EmergencyRequest{
		DueWithinHours: emDueWithin,
		WorkCenterID:   emWorkCenter,
		Reason:         emReason,
	}
	for _, p := range emPriorities {
		prio, err := task.ParsePriority(p)
		if err != nil {
			return err
		}
		req.Priorities = append(req.Priorities, prio)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		results, events, err := a.reassign.EmergencyRedistribute(ctx, a.tenant, req)
		if err != nil {
			return err
		}
		return a.printBatch(results, events)
	})
}
