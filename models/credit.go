package models

import "time"

// CreditAccount is the scan-credit balance of a single user. Credits are
// spent on receipt scans and granted by top-ups; the balance is only ever
// changed through guarded read-modify-write transactions so concurrent
// deductions cannot drive it negative.
type CreditAccount struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
