package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show worker workloads and task counts",
	Long: `Display the current workload of every active worker and a count of
the tenant's tasks by status.

Shows:
- Active, urgent and overdue tasks per worker
- Estimated hours of active work per worker
- Whether the worker is at assignment capacity`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsWorkOrder string

func init() {
	statsCmd.Flags().StringVarP(&statsWorkOrder, "work-order", "w", "", "Count tasks of this work order only")
	rootCmd.AddCommand(statsCmd)
}

// workerStats is one row of the workload report.
type workerStats struct {
	WorkerID     string  `json:"workerId"`
	Name         string  `json:"name,omitempty"`
	ActiveTasks  int     `json:"activeTasks"`
	UrgentTasks  int     `json:"urgentTasks"`
	OverdueTasks int     `json:"overdueTasks"`
	ActiveHours  float64 `json:"activeHours"`
	AtCapacity   bool    `json:"atCapacity"`
}

// statsReport is the JSON form of 'stats'.
type statsReport struct {
	Capacity int                 `json:"capacity"`
	Workers  []workerStats       `json:"workers"`
	ByStatus map[task.Status]int `json:"byStatus"`
	Total    int                 `json:"total"`
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		pool, err := a.engine.LoadPool(ctx, a.tenant)
		if err != nil {
			return err
		}
		tasks, err := a.store.ListTasks(ctx, a.tenant, task.Filter{WorkOrderID: statsWorkOrder})
		if err != nil {
			return err
		}

		report := statsReport{
			Capacity: pool.Capacity(),
			ByStatus: make(map[task.Status]int),
			Total:    len(tasks),
		}
		for _, c := range pool.All() {
			report.Workers = append(report.Workers, workerStats{
				WorkerID:     c.Worker.ID,
				Name:         c.Worker.Name,
				ActiveTasks:  c.ActiveTasks,
				UrgentTasks:  c.UrgentTasks,
				OverdueTasks: c.OverdueTasks,
				ActiveHours:  c.ActiveHours,
				AtCapacity:   c.ActiveTasks >= pool.Capacity(),
			})
		}
		for _, t := range tasks {
			report.ByStatus[t.Status]++
		}

		return a.emit(report, func(w io.Writer) { printStats(w, report) })
	})
}

func printStats(w io.Writer, r statsReport) {
	fmt.Fprintln(w, titleStyle.Render("Workload"))
	if len(r.Workers) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No active workers."))
	} else {
		t := newTable("WORKER", "NAME", "ACTIVE", "URGENT", "OVERDUE", "HOURS", "")
		for _, ws := range r.Workers {
			flag := ""
			if ws.AtCapacity {
				flag = warningStyle.Render("at capacity")
			}
			t.Row(ws.WorkerID, ws.Name,
				strconv.Itoa(ws.ActiveTasks), strconv.Itoa(ws.UrgentTasks), strconv.Itoa(ws.OverdueTasks),
				formatHours(ws.ActiveHours), flag)
		}
		fmt.Fprintln(w, t.Render())
	}
	fmt.Fprintf(w, "Capacity: %d active tasks per worker\n\n", r.Capacity)

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Tasks (%d)", r.Total)))
	for _, s := range task.Statuses() {
		if n := r.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", statusText(s), n)
		}
	}
}
