// Package checkpoint persists conversation state between turns, keyed by
// thread. Stores own the persisted copy exclusively; the executor works on
// an in-flight copy during a turn and writes back only on success.
//
// Two implementations are provided: an in-memory store for tests and single
// process deployments, and a Redis-backed store for anything that has to
// survive a restart.
package checkpoint
