package interfaces

import "context"

// Notifier delivers a best-effort message to a user. Callers treat failures
// as non-fatal: log and move on, never retry, never roll back.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string) error
}
