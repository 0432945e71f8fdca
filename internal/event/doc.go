// Package event provides the scheduling engine's domain events and a pub-sub
// bus to dispatch them.
//
// Engine operations are side-effect free with respect to notification: each
// mutating call returns the events it produced alongside its result, and the
// caller decides when (and whether) to publish them. This keeps the engine
// testable without a live bus.
//
// # Main Types
//
//   - [Event]: EventType(), Timestamp() and TenantID()
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: func(Event)
//
// # Event Categories
//
// Dependency graph:
//   - [DependencyAddedEvent], [DependencyRemovedEvent]
//   - [TaskReadyEvent]: a task was promoted to READY by the readiness cascade
//   - [TaskSplitEvent]: a task was replaced by subtasks
//   - [TaskStatusChangedEvent]: a caller-requested status change was applied
//
// Assignment:
//   - [TaskAssignedEvent]
//   - [TasksBulkReassignedEvent], [WorkerUnavailabilityHandledEvent],
//     [WorkloadBalancedEvent], [EmergencyRedistributionEvent]: one aggregate
//     event per batch, carrying a [BatchSummary]
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeTaskReady, func(e event.Event) {
//	    ready := e.(event.TaskReadyEvent)
//	    notify(ready.Task.AssigneeID)
//	})
//
//	res, events, err := manager.AddDependency(ctx, tenant, "t2", "t1")
//	if err != nil {
//	    return err
//	}
//	bus.PublishAll(events)
//
// Handlers run synchronously in registration order, specific subscribers
// before wildcard ones. A panicking handler is recovered and logged.
package event
