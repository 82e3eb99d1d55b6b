// Package queue defines the mail messages exchanged over RabbitMQ, the
// publisher used by the services and the consumer run by the
// mail-worker command.
package queue

import "time"

// Mail kinds.
const (
	MailInvite        = "invite"
	MailPasswordReset = "password_reset"
)

// MailEvent asks the mail worker to deliver one message.  It carries
// everything needed to render the mail so the worker never queries the
// primary database.
type MailEvent struct {
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
