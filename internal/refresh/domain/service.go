package domain

import (
	"context"
	"time"
)

// Service runs one refresh of one account. Callers must not run two refreshes
// of the same account concurrently.
type Service interface {
	Run(ctx context.Context, req RunRequest) (*Outcome, error)
}

// Transformer turns merged records into shards. It must not have side effects.
type Transformer interface {
	Transform(records []Record, referenceDate time.Time, accountID, accountName string) (Shards, error)
}

// Validator checks shards; an empty result means they are usable.
type Validator interface {
	Validate(shards Shards) []string
}
