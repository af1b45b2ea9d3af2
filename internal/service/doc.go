package service

// Package service runs the external poster generator.
//
// Overview
// The Runner executes one Command and returns one Outcome. The Probe and the
// Dispatcher build Commands from a tool.Tool and hand them to an Executor,
// which is the Runner in production and a stub in tests.
//
// The Dispatcher accepts a request, resolves its output path and starts the
// generation as a detached task. The caller gets a Ticket back right away and
// never learns the result; outcomes go to the observer, which logs them.
//
// Runner is a thin, opinionated wrapper around os/exec:
//   - starts the process in its own process group
//   - captures stdout and stderr separately
//   - kills the whole group when the timeout expires
//   - classifies the failure as timeout, tool failure, environment or cancel
//
// Data flow:
//
//   gateway               Dispatcher               Runner{cmd}
//       |                    |                       |
//   Dispatch() ------------->| resolve path          |
//       |<------ Ticket -----| wg.Go(run) ---------->| os/exec.Run
//       |                    |                       | (process exits or is killed)
//       |                    |<------ Outcome -------|
//       |                    | observe(Outcome)      |
//
// Invariants:
//   - Each Run starts exactly one process and never retries.
//   - Each Run ends with exactly one Outcome.
//   - A detached task outlives the request that started it.
//   - Close stops new dispatches; an expired Close context kills the rest.
//   - Readiness is computed per call and never cached.
