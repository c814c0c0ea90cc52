// Package sched holds the master scheduler's core: cadence parsing, the
// window evaluator, the per-tick config snapshot, and the driver that walks
// the per-job state machine.
//
// The driver is trigger-agnostic: cmd/schedulerd fires one Tick per cron
// invocation, or once per minute from its own ticker in daemon mode.
package sched
