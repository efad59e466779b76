// Package notify delivers account-security emails. Delivery never blocks
// or fails a security operation: the [Dispatcher] queues messages and a
// background goroutine hands them to a [Mailer], logging failures.
package notify
