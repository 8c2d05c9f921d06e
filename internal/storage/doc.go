// Package storage holds todo and user records.
//
// Drivers:
//   - "memory": in-process arena with a mutex per record (default)
//   - "sqlite": SQLite database file, optimistic concurrency on a version column
//
// Both drivers keep the same update contract: unknown ids are never created
// implicitly, and every successful update moves UpdatedAt strictly forward.
package storage
