// Package triggers is the in-process scheduling engine: a store of named,
// independently cancellable triggers bound to units of work.
//
// # Naming
//
// Triggers are registered under stable string names (e.g. "water_500_3").
// Registering an existing name atomically replaces it; there is no window
// where both the old and new trigger can fire. Whole-recipient teardown
// removes by name prefix, and callers include the trailing separator in the
// prefix ("water_500_") so recipient ids that extend each other ("12" vs
// "123") stay disjoint.
//
// # Execution
//
// Cron goroutines only enqueue; a bounded worker pool executes. Per name, at
// most one fire runs at a time and at most one more may wait in the queue,
// so a burst of delayed fires coalesces into a single catch-up run. Fires
// whose scheduled time is older than the misfire grace period are dropped,
// never executed; drops, skips, and failures are published on the event bus
// so the delivery layer can log or alert on them.
package triggers
