package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

func seed(t *testing.T, s Store, tenant string, tasks ...*task.Task) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), tenant, func(tx Tx) error {
		tx.PutTasks(tasks...)
		return nil
	}))
}

func TestMemory_TaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m, "acme", &task.Task{ID: "t1", WorkOrderID: "wo", Status: task.StatusPending})

	got, err := m.Task(ctx, "acme", "t1")
	require.NoError(t, err)
	assert.Equal(t, "wo", got.WorkOrderID)
	assert.False(t, got.CreatedAt.IsZero())

	got.Status = task.StatusCancelled
	again, err := m.Task(ctx, "acme", "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, again.Status, "reads must return copies")

	_, err = m.Task(ctx, "other-tenant", "t1")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestMemory_TasksAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, m, "acme",
		&task.Task{ID: "b", WorkOrderID: "wo", CreatedAt: base},
		&task.Task{ID: "a", WorkOrderID: "wo", CreatedAt: base.Add(time.Minute)},
		&task.Task{ID: "c", WorkOrderID: "other", CreatedAt: base},
	)

	got, err := m.Tasks(ctx, "acme", []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, task.IDs(got))

	listed, err := m.ListTasks(ctx, "acme", task.Filter{WorkOrderID: "wo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, task.IDs(listed))
}

func TestMemory_UpdateRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutTasks(&task.Task{ID: "t1"})
		return fmt.Errorf("validation failed")
	})
	require.Error(t, err)

	_, err = m.Task(ctx, "acme", "t1")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)

	m.FailNextUpdate(fmt.Errorf("disk full"))
	err = m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutTasks(&task.Task{ID: "t2"})
		return nil
	})
	require.EqualError(t, err, "disk full")
	_, err = m.Task(ctx, "acme", "t2")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)

	seed(t, m, "acme", &task.Task{ID: "t3"})
	_, err = m.Task(ctx, "acme", "t3")
	assert.NoError(t, err, "failure is one-shot")
}

func TestMemory_StagedValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tk := &task.Task{ID: "t1", Name: "before"}

	require.NoError(t, m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutTasks(tk)
		tk.Name = "after"
		return nil
	}))

	got, err := m.Task(ctx, "acme", "t1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)
}

func TestMemory_Assignments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := task.NewAssignment("t1", "w1", task.MethodManual, "", now)
	require.NoError(t, m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutAssignments(first)
		return nil
	}))

	active, err := m.ActiveAssignment(ctx, "acme", "t1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "w1", active.WorkerID)

	second := active.Supersede("w2", task.MethodBalancing, "rebalance", now.Add(time.Hour))
	require.NoError(t, m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutAssignments(active, second)
		return nil
	}))

	all, err := m.Assignments(ctx, "acme", "t1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, task.AssignmentReassigned, all[0].Status)
	assert.Equal(t, "w2", all[1].WorkerID)

	active, err = m.ActiveAssignment(ctx, "acme", "t1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	none, err := m.ActiveAssignment(ctx, "acme", "t-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemory_WorkersAndCursor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Update(ctx, "acme", func(tx Tx) error {
		tx.PutWorkers(
			&task.Worker{ID: "w2", Active: true},
			&task.Worker{ID: "w1", Active: true},
			&task.Worker{ID: "w3", Active: false},
		)
		tx.PutCursor("round_robin", "w1")
		return nil
	}))

	workers, err := m.ActiveWorkers(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "w1", workers[0].ID)
	assert.Equal(t, "w2", workers[1].ID)

	_, err = m.Worker(ctx, "acme", "w9")
	assert.ErrorIs(t, err, errors.ErrWorkerNotFound)

	cursor, err := m.Cursor(ctx, "acme", "round_robin")
	require.NoError(t, err)
	assert.Equal(t, "w1", cursor)

	cursor, err = m.Cursor(ctx, "other", "round_robin")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemory().Update(ctx, "acme", func(tx Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
