package dto

import "net/http"

// Error codes returned in ErrorInfo.Code. All codes use the ERR_ prefix;
// domain errors are translated by NormalizeErrorCode.
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeValidation = "ERR_VALIDATION"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"

	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState  = "ERR_INVALID_STATE"

	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
)

// Pipeline error codes.
const (
	// ErrCodePartialDataset means the scraper returned an incomplete dataset.
	ErrCodePartialDataset = "ERR_PARTIAL_DATASET"
	// ErrCodeReconciliationConflict means a cleanup raced another writer on
	// the same post.
	ErrCodeReconciliationConflict = "ERR_RECONCILIATION_CONFLICT"
	// ErrCodeUpstreamUnavailable means LinkedIn or the scraper failed, or a
	// request ran out of time waiting on them.
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	// ErrCodeAnalysisFailed means no stage of an analysis produced a result.
	ErrCodeAnalysisFailed = "ERR_ANALYSIS_FAILED"
	// ErrCodeServiceUnavailable means a component the request needs is not
	// configured or its circuit is open.
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeInvalidState:  http.StatusUnprocessableEntity,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	ErrCodePartialDataset:         http.StatusUnprocessableEntity,
	ErrCodeReconciliationConflict: http.StatusConflict,
	ErrCodeUpstreamUnavailable:    http.StatusBadGateway,
	ErrCodeAnalysisFailed:         http.StatusBadGateway,
	ErrCodeServiceUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status of an error code, 500 if unknown.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodes maps shared.DomainError codes to API error codes.
var DomainErrorCodes = map[string]string{
	"NOT_FOUND":      ErrCodeNotFound,
	"ALREADY_EXISTS": ErrCodeAlreadyExists,
	"INVALID_INPUT":  ErrCodeInvalidInput,
	"INVALID_STATE":  ErrCodeInvalidState,
	"UNAUTHORIZED":   ErrCodeUnauthorized,

	"UPSTREAM_UNAVAILABLE":    ErrCodeUpstreamUnavailable,
	"INPUT_MALFORMED":         ErrCodeInvalidInput,
	"PARTIAL_DATASET":         ErrCodePartialDataset,
	"RECONCILIATION_CONFLICT": ErrCodeReconciliationConflict,
	"COMPLETE_FAILURE":        ErrCodeAnalysisFailed,
	"ENRICHER_MISSING":        ErrCodeServiceUnavailable,
}

// NormalizeErrorCode converts a domain error code to its API code. Other
// codes are returned unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodes[code]; ok {
		return apiCode
	}
	return code
}
