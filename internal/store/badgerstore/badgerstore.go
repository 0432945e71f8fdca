// Package badgerstore is a store.Backend persisted in BadgerDB.
//
// Keys are namespaced per tenant:
//
//	t/<tenant>/task/<id>
//	t/<tenant>/asg/<taskID>/<createdAtNanos>/<assignmentID>
//	t/<tenant>/cursor/<key>
//	t/<tenant>/worker/<id>
//
// Every ID component is path-escaped, so a "/" inside a tenant or ID can
// never reach into another key's prefix.
//
// Values are JSON. An Update maps to one Badger read-write transaction, so a
// unit of work commits or discards as a whole.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// Config holds configuration for the Badger backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Used by tests and dry runs.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives Badger's internal messages. Nil disables them.
	Logger *logging.Logger
}

// DefaultConfig returns durable settings for the given directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns settings for a throwaway database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts logging.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a Badger-backed store.Backend. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ store.Backend = (*Store)(nil)

// Open opens (creating if needed) a database with cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.NewValidationError("path is required for persistent store").WithField("store.path")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

func esc(s string) string { return url.PathEscape(s) }

func tenantPrefix(tenantID string) string { return "t/" + esc(tenantID) + "/" }

func taskKey(tenantID, id string) []byte {
	return []byte(tenantPrefix(tenantID) + "task/" + esc(id))
}

func taskPrefix(tenantID string) []byte {
	return []byte(tenantPrefix(tenantID) + "task/")
}

func assignmentPrefix(tenantID, taskID string) []byte {
	return []byte(tenantPrefix(tenantID) + "asg/" + esc(taskID) + "/")
}

// assignmentKey orders a task's assignments by creation time. CreatedAt
// never changes, so updates overwrite the same key.
func assignmentKey(tenantID string, a *task.Assignment) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", assignmentPrefix(tenantID, a.TaskID), a.CreatedAt.UnixNano(), esc(a.ID)))
}

func cursorKey(tenantID, key string) []byte {
	return []byte(tenantPrefix(tenantID) + "cursor/" + esc(key))
}

func workerKey(tenantID, id string) []byte {
	return []byte(tenantPrefix(tenantID) + "worker/" + esc(id))
}

func workerPrefix(tenantID string) []byte {
	return []byte(tenantPrefix(tenantID) + "worker/")
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "read aborted")
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanJSON decodes every value under prefix, in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte, visit func(*T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		v := new(T)
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		if err := visit(v); err != nil {
			return err
		}
	}
	return nil
}

// Task implements store.Reader.
func (s *Store) Task(ctx context.Context, tenantID, id string) (*task.Task, error) {
	var t task.Task
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, taskKey(tenantID, id), &t)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load task %s", id)
	}
	if !found {
		return nil, errors.NewNotFoundError("task", id)
	}
	return &t, nil
}

// Tasks implements store.Reader.
func (s *Store) Tasks(ctx context.Context, tenantID string, ids []string) ([]*task.Task, error) {
	out := make([]*task.Task, 0, len(ids))
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			var t task.Task
			found, err := getJSON(txn, taskKey(tenantID, id), &t)
			if err != nil {
				return err
			}
			if found {
				out = append(out, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load tasks")
	}
	return out, nil
}

// ListTasks implements store.Reader.
func (s *Store) ListTasks(ctx context.Context, tenantID string, f task.Filter) ([]*task.Task, error) {
	var out []*task.Task
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, taskPrefix(tenantID), func(t *task.Task) error {
			if f.Match(t) {
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	store.SortByCreation(out)
	return out, nil
}

// Assignments implements store.Reader.
func (s *Store) Assignments(ctx context.Context, tenantID, taskID string) ([]*task.Assignment, error) {
	var out []*task.Assignment
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, assignmentPrefix(tenantID, taskID), func(a *task.Assignment) error {
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load assignments of %s", taskID)
	}
	return out, nil
}

// ActiveAssignment implements store.Reader.
func (s *Store) ActiveAssignment(ctx context.Context, tenantID, taskID string) (*task.Assignment, error) {
	all, err := s.Assignments(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsActive() {
			return all[i], nil
		}
	}
	return nil, nil
}

// Cursor implements store.Reader.
func (s *Store) Cursor(ctx context.Context, tenantID, key string) (string, error) {
	var value string
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey(tenantID, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		value = string(raw)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "load cursor %s", key)
	}
	return value, nil
}

// ActiveWorkers implements store.WorkerDirectory.
func (s *Store) ActiveWorkers(ctx context.Context, tenantID string) ([]*task.Worker, error) {
	var out []*task.Worker
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, workerPrefix(tenantID), func(w *task.Worker) error {
			if w.Active {
				out = append(out, w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list workers")
	}
	return out, nil
}

// Worker implements store.WorkerDirectory.
func (s *Store) Worker(ctx context.Context, tenantID, id string) (*task.Worker, error) {
	var w task.Worker
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, workerKey(tenantID, id), &w)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load worker %s", id)
	}
	if !found {
		return nil, errors.NewNotFoundError("worker", id)
	}
	return &w, nil
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// Update implements store.Store. fn stages writes; they are committed in a
// single Badger transaction.
func (s *Store) Update(ctx context.Context, tenantID string, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "update aborted")
	}

	tx, apply := store.NewBatch()
	if err := fn(tx); err != nil {
		return err
	}

	now := s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		return apply(&txnApplier{txn: txn, tenantID: tenantID, now: now})
	})
}

type txnApplier struct {
	txn      *badger.Txn
	tenantID string
	now      time.Time
}

func (a *txnApplier) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return a.txn.Set(key, data)
}

func (a *txnApplier) Task(t *task.Task) error {
	key := taskKey(a.tenantID, t.ID)
	if t.CreatedAt.IsZero() {
		var prev task.Task
		found, err := getJSON(a.txn, key, &prev)
		if err != nil {
			return err
		}
		if found {
			t.CreatedAt = prev.CreatedAt
		} else {
			t.CreatedAt = a.now
		}
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = a.now
	}
	return a.setJSON(key, t)
}

func (a *txnApplier) Assignment(asg *task.Assignment) error {
	if asg.CreatedAt.IsZero() {
		asg.CreatedAt = a.now
	}
	return a.setJSON(assignmentKey(a.tenantID, asg), asg)
}

func (a *txnApplier) Cursor(key, value string) error {
	return a.txn.Set(cursorKey(a.tenantID, key), []byte(value))
}

func (a *txnApplier) Worker(w *task.Worker) error {
	return a.setJSON(workerKey(a.tenantID, w.ID), w)
}
