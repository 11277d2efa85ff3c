// Package queue carries notifications over RabbitMQ: the service publishes
// NotificationEvent messages and the consumer turns them into push
// messages for the Expo gateway.
package queue

import "time"

// NotificationQueue is the default queue name.
const NotificationQueue = "reservation.notifications"

// NotificationEvent is one fully formed notification.  Recipients are
// device push tokens; Title, Subtitle and Body are shown as is.
type NotificationEvent struct {
	Recipients  []string          `json:"recipients"`
	Title       string            `json:"title"`
	Subtitle    string            `json:"subtitle,omitempty"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Reservation string            `json:"reservation,omitempty"`
	Place       string            `json:"place,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
