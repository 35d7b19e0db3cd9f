package models

import "time"

// SyncState is the per-(local user, shared group) synchronization metadata:
// the watermark up to which the client has successfully merged deltas.
// It is created on the first successful fetch, advanced monotonically on
// each successful merge, and discarded when the group is removed.
type SyncState struct {
	GroupID   string    `json:"group_id"`
	Watermark time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}
