package analytics

import "github.com/campaignlens/backend/internal/domain/shared"

// Failure taxonomy of the correlation and reconciliation pipeline.
var (
	// ErrUpstreamUnavailable marks a collaborator call that failed or timed out.
	// Call sites convert it to a neutral score and log a warning.
	ErrUpstreamUnavailable = shared.NewDomainError("UPSTREAM_UNAVAILABLE", "Upstream source unavailable")
	// ErrInputMalformed marks a post URL that matches no known identifier pattern.
	ErrInputMalformed = shared.NewDomainError("INPUT_MALFORMED", "Input is malformed")
	// ErrPartialDataset marks an analysis where some parallel fetches failed.
	ErrPartialDataset = shared.NewDomainError("PARTIAL_DATASET", "Partial dataset")
	// ErrReconciliationConflict marks duplicate or orphaned records.
	ErrReconciliationConflict = shared.NewDomainError("RECONCILIATION_CONFLICT", "Reconciliation conflict")
	// ErrCompleteFailure marks a top-level failure with no usable partial data.
	ErrCompleteFailure = shared.NewDomainError("COMPLETE_FAILURE", "Analysis failed completely")
)
