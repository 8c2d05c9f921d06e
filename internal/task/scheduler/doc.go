// Package scheduler runs named recurring tasks.
//
// Every task owns a Handle: a goroutine loop with its own cancel func that
// computes the next trigger from a robfig/cron Schedule, runs the work inline
// and records the outcome. Runs of one task never overlap; a failing or
// panicking run is logged and the loop keeps going.
package scheduler
