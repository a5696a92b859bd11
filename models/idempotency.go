package models

import "time"

// IdempotencyKey stores the first completed response for a submission key.
// Keys are scoped per client so two clients cannot collide on the same value.
type IdempotencyKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Key            string     `json:"key" gorm:"size:128;uniqueIndex:idx_idempotency_scope_key"` // header value
	Scope          string     `json:"scope" gorm:"size:128;uniqueIndex:idx_idempotency_scope_key"`
	RequestHash    string     `json:"request_hash" gorm:"size:64"` // sha256 of method|path|body|scope
	Method         string     `json:"method" gorm:"size:10"`
	Path           string     `json:"path" gorm:"size:255"`
	ResponseStatus int        `json:"response_status"` // 0 => not completed yet
	ResponseBody   []byte     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}
