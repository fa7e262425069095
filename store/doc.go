// Package store persists run and task state. The engine saves after every
// state transition so a crashed process can surface the last known state.
//
// Two implementations ship: an in-memory store for tests and single-process
// deployments, and a GORM-backed store supporting SQLite, PostgreSQL and
// MySQL.
package store
