package domain

import "time"

// QueueMessage is a leased or pending event on the ingress queue.
type QueueMessage struct {
	ID           string    `json:"id" db:"id"`
	DeliveryID   string    `json:"delivery_id" db:"delivery_id"`
	Payload      string    `json:"payload" db:"payload"`
	ReceivedAt   time.Time `json:"received_at" db:"received_at"`
	VisibleAt    time.Time `json:"visible_at" db:"visible_at"`
	Receipt      string    `json:"-" db:"receipt"`
	ReceiveCount int       `json:"receive_count" db:"receive_count"`
	DeadLetter   bool      `json:"dead_letter" db:"dead_letter"`
	LastError    string    `json:"last_error,omitempty" db:"last_error"`
}

// QueueStats summarizes the ingress queue.
type QueueStats struct {
	Visible    int `json:"visible"`
	InFlight   int `json:"in_flight"`
	DeadLetter int `json:"dead_letter"`
}
