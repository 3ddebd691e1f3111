package errors

// ErrorCode identifies a failure category across the API surface.
type ErrorCode int

const (
	ErrorCode_HTTP_OK ErrorCode = 0

	// General
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_NOT_FOUND        ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS   ErrorCode = 1003
	ErrorCode_UNAUTHENTICATED  ErrorCode = 1004
	ErrorCode_FORBIDDEN        ErrorCode = 1005
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1006

	// Identity
	ErrorCode_AUTH_INVALID_TOKEN ErrorCode = 2000
	ErrorCode_AUTH_TOKEN_EXPIRED ErrorCode = 2001

	// Retrieval / provider taxonomy
	ErrorCode_PROVIDER_TRANSIENT  ErrorCode = 3000
	ErrorCode_PROVIDER_PERMANENT  ErrorCode = 3001
	ErrorCode_EMBEDDING_FAILED    ErrorCode = 3002
	ErrorCode_GENERATION_FAILED   ErrorCode = 3003
	ErrorCode_DIMENSION_MISMATCH  ErrorCode = 3004
	ErrorCode_SEARCH_FAILED       ErrorCode = 3005
	ErrorCode_INGEST_FAILED       ErrorCode = 3006
	ErrorCode_TRANSCRIPT_INVALID  ErrorCode = 3007
	ErrorCode_SESSION_NOT_FOUND   ErrorCode = 3008
	ErrorCode_VIDEO_NOT_FOUND     ErrorCode = 3009
	ErrorCode_TENANT_MISMATCH     ErrorCode = 3010
	ErrorCode_BUDGET_EXCEEDED     ErrorCode = 3011

	// Infrastructure
	ErrorCode_DB_QUERY_FAILED          ErrorCode = 4000
	ErrorCode_INTEGRATION_CACHE_FAILED ErrorCode = 4001
	ErrorCode_INTEGRATION_STORAGE_FAILED ErrorCode = 4002
)

var codeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                    "OK",
	ErrorCode_INTERNAL:                   "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:           "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                  "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:             "ALREADY_EXISTS",
	ErrorCode_UNAUTHENTICATED:            "UNAUTHENTICATED",
	ErrorCode_FORBIDDEN:                  "FORBIDDEN",
	ErrorCode_INVALID_PAYLOAD:            "INVALID_PAYLOAD",
	ErrorCode_AUTH_INVALID_TOKEN:         "AUTH_INVALID_TOKEN",
	ErrorCode_AUTH_TOKEN_EXPIRED:         "AUTH_TOKEN_EXPIRED",
	ErrorCode_PROVIDER_TRANSIENT:         "PROVIDER_TRANSIENT",
	ErrorCode_PROVIDER_PERMANENT:         "PROVIDER_PERMANENT",
	ErrorCode_EMBEDDING_FAILED:           "EMBEDDING_FAILED",
	ErrorCode_GENERATION_FAILED:          "GENERATION_FAILED",
	ErrorCode_DIMENSION_MISMATCH:         "DIMENSION_MISMATCH",
	ErrorCode_SEARCH_FAILED:              "SEARCH_FAILED",
	ErrorCode_INGEST_FAILED:              "INGEST_FAILED",
	ErrorCode_TRANSCRIPT_INVALID:         "TRANSCRIPT_INVALID",
	ErrorCode_SESSION_NOT_FOUND:          "SESSION_NOT_FOUND",
	ErrorCode_VIDEO_NOT_FOUND:            "VIDEO_NOT_FOUND",
	ErrorCode_TENANT_MISMATCH:            "TENANT_MISMATCH",
	ErrorCode_BUDGET_EXCEEDED:            "BUDGET_EXCEEDED",
	ErrorCode_DB_QUERY_FAILED:            "DB_QUERY_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:   "INTEGRATION_CACHE_FAILED",
	ErrorCode_INTEGRATION_STORAGE_FAILED: "INTEGRATION_STORAGE_FAILED",
}

// String returns the symbolic name for the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
