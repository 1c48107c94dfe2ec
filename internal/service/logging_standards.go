package service

// Logging Standards for receiptgate
//
// This file defines standard field names and patterns to keep logging
// consistent across the gateway.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldSession   = "session"
	LogFieldMessageID = "message_id"
	LogFieldSender    = "sender"
	LogFieldItemID    = "item_id"
	LogFieldIdentity  = "identity"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Session lifecycle
	LogFieldEvent     = "event"
	LogFieldState     = "state"
	LogFieldStatus    = "status"
	LogFieldReconnect = "reconnect_attempt"
	LogFieldAttempt   = "start_attempt"
	LogFieldRetryIn   = "retry_in"

	// Filter and queue
	LogFieldDecision   = "decision"
	LogFieldQueueDepth = "queue_depth"
	LogFieldWaited     = "waited_ms"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size"

	// HTTP requests
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Network and external services
	LogFieldEndpoint = "endpoint"

	// File and media
	LogFieldFilePath = "file_path"
	LogFieldFileName = "file_name"
	LogFieldMimeType = "mime_type"

	// Forwarding
	LogFieldOutcome       = "outcome"
	LogFieldFailureKind   = "failure_kind"
	LogFieldAmount        = "amount"
	LogFieldAmountDisplay = "amount_display"
	LogFieldIssuer        = "issuer"

	// Error and debugging
	LogFieldErrorCode = "error_code"
)

// Log Level Usage Guidelines
//
// DEBUG: ignored events, loading progress, raw engine states.
// INFO: startup/shutdown, session transitions, accepted and forwarded receipts.
// WARN: discarded attachments, soft failures, failed replies, reconnects.
// ERROR: forwarding failures, authentication failures, exhausted reconnects.
//
// Sender addresses always go through privacy.Masker; message bodies are
// only logged in verbose mode.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
// External services: "[Service] request completed" / "Failed to connect to [service]"
