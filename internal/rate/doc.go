// Package rate implements fixed-window check-and-increment rate limiting
// for the authentication flows.
//
// # Window semantics
//
// A bucket key is category plus actor key. The first hit in a window
// creates the counter and arms its expiry; later hits increment it. The
// check and the increment are one operation, so concurrent callers cannot
// slip past the budget between a read and a write.
//
// The counter store is pluggable: a process-local in-memory store for
// single-instance deployments and tests, or shared Redis counters when
// several instances must agree on one budget.
//
// # What this package must NOT do
//
//   - Decide per-flow budgets or actor keys (the engine configures those).
//   - Be imported outside this module.
package rate
