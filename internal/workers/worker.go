// Package workers runs the background jobs of the bot: bulk resync, payment autocheck,
// expiry status refresh, expiration reminders and the panel availability monitor.
package workers

// Worker is a background job with its own schedule.
type Worker interface {
	Start() error
	// Stop blocks until the running iteration, if any, has returned.
	Stop()
	Name() string
}
