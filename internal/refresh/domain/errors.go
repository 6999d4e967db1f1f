package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/insightsync/internal/provider"
)

type Stage string

const (
	StageCredentials     Stage = "credentials"
	StageLoad            Stage = "load"
	StageFetch           Stage = "fetch"
	StageTransform       Stage = "transform"
	StageValidate        Stage = "validate"
	StagePersistRaw      Stage = "persist_raw"
	StagePersistShards   Stage = "persist_shards"
	StagePersistManifest Stage = "persist_manifest"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrValidationFailed = errors.New("shard_validation_failed")
)

// RefreshError is the only error Run returns. Stage tells a data problem
// from a provider or storage problem.
type RefreshError struct {
	TenantID  string
	AccountID string
	Stage     Stage
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s/%s failed at %s: %v", e.TenantID, e.AccountID, e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// ValidationError carries every message reported by the validator.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d validation problem(s): %v", len(e.Problems), e.Problems)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// IsProviderError reports whether err came from the ads provider or the network.
func IsProviderError(err error) bool {
	return provider.IsAPIError(err)
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.Stage, true
	}
	return "", false
}
