// Package history persists run results.
//
// The scheduler appends attempted runs, lock skips, and error outcomes to a
// SQLite file so operators can query what ran, when, and how it went
// (`schedulerd -last <job>`).
package history
