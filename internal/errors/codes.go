// Package errors provides structured error handling for the review RAG service.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index blob, review table)
//   - 3XX: Upstream service errors (LLM, embedding, rerank, vector stores)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and store I/O errors.
	CategoryIO Category = "IO"
	// CategoryUpstream indicates errors from external model services.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort the request.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but serving can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexNotFound = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeIndexCorrupt  = "ERR_202_INDEX_CORRUPT"
	ErrCodeStoreIO       = "ERR_203_STORE_IO"
	ErrCodeReviewLoad    = "ERR_204_REVIEW_LOAD"

	// Upstream errors (300-399)
	ErrCodeLLMCall         = "ERR_301_LLM_CALL"
	ErrCodeLLMParse        = "ERR_302_LLM_PARSE"
	ErrCodeEmbeddingFailed = "ERR_303_EMBEDDING_FAILED"
	ErrCodeRerankFailed    = "ERR_304_RERANK_FAILED"
	ErrCodeVectorQuery     = "ERR_305_VECTOR_QUERY"
	ErrCodeIntentFatal     = "ERR_306_INTENT_RECOGNITION"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty    = "ERR_402_QUERY_EMPTY"
	ErrCodeNoRoutes      = "ERR_403_NO_ROUTES_ENABLED"
	ErrCodeInvalidOption = "ERR_404_INVALID_OPTION"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Intent-recognition failure is the one fatal upstream error: the
// pipeline branch depends on its result.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIntentFatal, ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return SeverityFatal
	case ErrCodeVectorQuery, ErrCodeLLMParse:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code
// may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLLMCall, ErrCodeLLMParse, ErrCodeEmbeddingFailed, ErrCodeVectorQuery:
		return true
	default:
		return false
	}
}
