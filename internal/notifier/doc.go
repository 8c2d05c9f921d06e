// Package notifier delivers "reminder due" notifications.
//
// The service listens on the event bus for todos promoted to REMINDER_DUE and
// hands each one to a Sink through a small worker pool with a rate limit,
// bounded retries and a dedup window keyed by todo and reminder time.
//
// Delivery is best-effort. A full queue drops the notification and a failing
// sink gives up after RetryMax retries; the todo itself is never touched.
//
// # History
//
// The service keeps a short in-memory history of delivered notifications for
// the health endpoint.
package notifier
