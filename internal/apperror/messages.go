package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",

	// Connection errors
	CodeConnectionTransportFailed: "WebSocket transport connection failed",
	CodeConnectionAuthRejected:    "Authentication rejected by exchange",
	CodeConnectionProtocolError:   "WebSocket protocol violation",
	CodeConnectionStale:           "Connection stale, no traffic within heartbeat timeout",
	CodeMaxRetriesReached:         "Maximum reconnect attempts reached",

	// Parser errors
	CodeParseError: "Failed to parse inbound frame",

	// Subscription manager errors
	CodeSubscriptionInvalidChannel: "Invalid channel specification",
	CodeSubscriptionRejected:       "Subscription rejected by exchange",
	CodeSubscriptionTimeout:        "Subscription acknowledgement timed out",

	// Sequence tracker errors
	CodeSequenceGap:       "Sequence gap detected",
	CodeSequenceDuplicate: "Duplicate or out-of-order sequence number",

	// Book engine errors
	CodeBookChecksumFail:   "Order book checksum mismatch",
	CodeBookCrossed:        "Order book crossed (best bid >= best ask)",
	CodeBookStaleSnapshot:  "Order book snapshot stale",
	CodeBookUnknownSymbol:  "Order book requested for unknown symbol",
	CodeOrderbookFetchFail: "Failed to fetch order book snapshot",

	// Backpressure / flow control errors
	CodeBackpressureQueueFull: "Event queue full",
	CodeBackpressureBlocked:   "Producer blocked on full critical-channel queue",
}
