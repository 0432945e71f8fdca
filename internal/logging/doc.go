// Package logging provides structured logging for the scheduling engine.
//
// It wraps log/slog with a JSON handler. Every engine component takes a
// [*Logger] through its options and tags entries with the tenant, work
// order and operation it is serving, so a single engine.log can be sliced
// per scope after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithTenant("acme").WithWorkOrder("wo-1").WithOperation("split_task")
//	log.Warn("subtask quantities do not add up", "task_id", id, "sum", sum)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"subtask quantities do not add up","tenant_id":"acme","work_order_id":"wo-1","operation":"split_task","task_id":"...","sum":40}
//
// With an empty directory the logger writes to stderr. [NopLogger] discards
// everything and is the default in every constructor.
//
// # Rotation
//
// File loggers rotate engine.log by size through [RotatingWriter]. Backups
// are engine.log.1 (newest) to engine.log.N, gzipped when Compress is set.
//
// # Reading Logs Back
//
// [ReadEntries] loads engine.log and its backups, [FilterEntries] narrows by
// level, time window, tenant, work order or operation, and [WriteEntries]
// renders the result as JSON, text or CSV. The "mesched logs" command is
// built on these.
//
// # Levels
//
// [LevelDebug], [LevelInfo] (default), [LevelWarn] and [LevelError]. Use
// [ParseLevel] to normalize user input and [ValidLevels] to list them.
package logging
