package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code, so wrapped
// copies carrying extra detail still satisfy errors.Is against the sentinels
// below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Configuration error codes. Always caller-fixable, returned immediately,
// never retried automatically.
const (
	ErrCodeInvalidParameters      = "INVALID_PARAMETERS"
	ErrCodeInvalidChunkConfig     = "INVALID_CHUNK_CONFIG"
	ErrCodeUnknownProvider        = "UNKNOWN_PROVIDER"
	ErrCodeEmbeddingModelMismatch = "EMBEDDING_MODEL_MISMATCH"
)

// Ingestion error codes. SOURCE_UNAVAILABLE is transient; PARSE_ERROR is
// per-file and never aborts sibling files in a batch.
const (
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeParseError        = "PARSE_ERROR"
)

// Provider error codes, the fixed taxonomy every connector normalizes into.
const (
	ErrCodeProviderAuth     = "AUTH_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeModelUnavailable = "MODEL_UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeProviderError    = "PROVIDER_ERROR"
	ErrCodeCancelled        = "CANCELLED"
)

// Configuration errors
var (
	ErrInvalidParameters      = NewDomainError(ErrCodeInvalidParameters, "invalid plugin parameters")
	ErrInvalidChunkConfig     = NewDomainError(ErrCodeInvalidChunkConfig, "invalid chunking configuration")
	ErrUnknownProvider        = NewDomainError(ErrCodeUnknownProvider, "unknown completion provider")
	ErrEmbeddingModelMismatch = NewDomainError(ErrCodeEmbeddingModelMismatch, "collection was embedded with a different model")
)

// Ingestion errors
var (
	ErrSourceUnavailable = NewDomainError(ErrCodeSourceUnavailable, "source could not be fetched")
	ErrParseError        = NewDomainError(ErrCodeParseError, "source document could not be parsed")
	ErrUnknownPlugin     = NewDomainError(ErrCodeNotFound, "ingestion plugin not registered")
)

// Not found errors
var (
	ErrCollectionNotFound = NewDomainError(ErrCodeNotFound, "knowledge collection not found")
	ErrFileNotFound       = NewDomainError(ErrCodeNotFound, "ingested file not found")
	ErrAssistantNotFound  = NewDomainError(ErrCodeNotFound, "assistant not found")
)

// Validation errors
var (
	ErrInvalidVisibility    = NewDomainError(ErrCodeValidation, "invalid collection visibility")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidThreshold     = NewDomainError(ErrCodeValidation, "similarity threshold must be in [0,1]")
)

// Provider errors
var (
	ErrProviderAuth     = NewDomainError(ErrCodeProviderAuth, "provider rejected credentials")
	ErrRateLimited      = NewDomainError(ErrCodeRateLimited, "provider rate limit exceeded")
	ErrModelUnavailable = NewDomainError(ErrCodeModelUnavailable, "requested model is unavailable")
	ErrProviderTimeout  = NewDomainError(ErrCodeTimeout, "provider call timed out")
	ErrProvider         = NewDomainError(ErrCodeProviderError, "provider call failed")
	ErrCancelled        = NewDomainError(ErrCodeCancelled, "completion cancelled by caller")
)
