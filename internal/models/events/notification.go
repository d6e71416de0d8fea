package events

import "time"

// UserNotification is the payload published to the notification side-channel
// after a materialization cycle. Delivery is best-effort; consumers own
// rendering and transport to the user's devices.
type UserNotification struct {
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
