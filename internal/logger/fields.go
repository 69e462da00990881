package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Upload Session
	// ========================================================================
	KeySessionID   = "session_id"   // Upload session identifier
	KeyLocalPath   = "local_path"   // Local file path being uploaded
	KeyClientIP    = "client_ip"    // Remote IP of a status API caller
	KeyUploadID    = "upload_id"    // Backend-assigned multipart upload identifier
	KeyObjectKey   = "object_key"   // Destination object key
	KeyBucket      = "bucket"       // Destination bucket name
	KeyStatus      = "status"       // Session or part status
	KeyStatusMsg   = "status_msg"   // Human-readable status message
	KeyStopReason  = "stop_reason"  // Reason code for pause/cancellation
	KeyTotalSize   = "total_size"   // Total file size in bytes
	KeyTotalParts  = "total_parts"  // Total number of parts in the session

	// ========================================================================
	// Part Operations
	// ========================================================================
	KeyPartNumber  = "part_number"  // 1-based part number
	KeyPartSize    = "part_size"    // Size of a single part in bytes
	KeyPartOffset  = "part_offset"  // Byte offset of a part within the file
	KeyETag        = "etag"         // ETag returned for a completed part
	KeyBytesSent   = "bytes_sent"   // Bytes transferred for a part or session

	// ========================================================================
	// Retry & Backoff
	// ========================================================================
	KeyAttempt     = "attempt"      // Retry attempt number
	KeyMaxRetries  = "max_retries"  // Maximum retry attempts configured
	KeyBackoffMs   = "backoff_ms"   // Computed backoff delay in milliseconds
	KeyRecoverable = "recoverable"  // Whether the triggering error is classified recoverable

	// ========================================================================
	// Backend Client
	// ========================================================================
	KeyEndpoint    = "endpoint"     // Backend HTTP endpoint called
	KeyHTTPStatus  = "http_status"  // HTTP response status code
	KeyHTTPMethod  = "http_method"  // HTTP request method

	// ========================================================================
	// Constraints
	// ========================================================================
	KeyNetworkType = "network_type" // Observed network type: wifi, cellular, unknown
	KeyCharging    = "charging"     // Whether the device is charging
	KeyBatteryPct  = "battery_pct"  // Battery percentage at time of evaluation
	KeyFreeBytes   = "free_bytes"   // Free local storage bytes at time of evaluation

	// ========================================================================
	// Storage
	// ========================================================================
	KeyStoreName = "store_name" // Durable store backend name: sqlite, postgres

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Taxonomy error code
	KeyOperation  = "operation"   // Sub-operation name for complex operations
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Upload Session
// ----------------------------------------------------------------------------

// SessionID returns a slog.Attr for the upload session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// LocalPath returns a slog.Attr for the local file path
func LocalPath(p string) slog.Attr {
	return slog.String(KeyLocalPath, p)
}

// UploadID returns a slog.Attr for the backend-assigned upload identifier
func UploadID(id string) slog.Attr {
	return slog.String(KeyUploadID, id)
}

// ObjectKey returns a slog.Attr for the destination object key
func ObjectKey(key string) slog.Attr {
	return slog.String(KeyObjectKey, key)
}

// Bucket returns a slog.Attr for the destination bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Status returns a slog.Attr for session or part status
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// StopReason returns a slog.Attr for a pause/cancellation reason code
func StopReason(reason string) slog.Attr {
	return slog.String(KeyStopReason, reason)
}

// TotalSize returns a slog.Attr for total file size in bytes
func TotalSize(n uint64) slog.Attr {
	return slog.Uint64(KeyTotalSize, n)
}

// TotalParts returns a slog.Attr for total part count
func TotalParts(n int) slog.Attr {
	return slog.Int(KeyTotalParts, n)
}

// ----------------------------------------------------------------------------
// Part Operations
// ----------------------------------------------------------------------------

// PartNumber returns a slog.Attr for the 1-based part number
func PartNumber(n int) slog.Attr {
	return slog.Int(KeyPartNumber, n)
}

// PartSize returns a slog.Attr for the size of a part in bytes
func PartSize(n uint64) slog.Attr {
	return slog.Uint64(KeyPartSize, n)
}

// PartOffset returns a slog.Attr for the byte offset of a part
func PartOffset(n uint64) slog.Attr {
	return slog.Uint64(KeyPartOffset, n)
}

// ETag returns a slog.Attr for a part's ETag
func ETag(etag string) slog.Attr {
	return slog.String(KeyETag, etag)
}

// BytesSent returns a slog.Attr for bytes transferred
func BytesSent(n uint64) slog.Attr {
	return slog.Uint64(KeyBytesSent, n)
}

// ----------------------------------------------------------------------------
// Retry & Backoff
// ----------------------------------------------------------------------------

// Attempt returns a slog.Attr for the retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the configured maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// BackoffMs returns a slog.Attr for the computed backoff delay
func BackoffMs(ms float64) slog.Attr {
	return slog.Float64(KeyBackoffMs, ms)
}

// Recoverable returns a slog.Attr for whether an error was classified recoverable
func Recoverable(r bool) slog.Attr {
	return slog.Bool(KeyRecoverable, r)
}

// ----------------------------------------------------------------------------
// Backend Client
// ----------------------------------------------------------------------------

// Endpoint returns a slog.Attr for the backend endpoint called
func Endpoint(url string) slog.Attr {
	return slog.String(KeyEndpoint, url)
}

// HTTPStatus returns a slog.Attr for an HTTP response status code
func HTTPStatus(code int) slog.Attr {
	return slog.Int(KeyHTTPStatus, code)
}

// HTTPMethod returns a slog.Attr for an HTTP request method
func HTTPMethod(method string) slog.Attr {
	return slog.String(KeyHTTPMethod, method)
}

// ----------------------------------------------------------------------------
// Constraints
// ----------------------------------------------------------------------------

// NetworkType returns a slog.Attr for the observed network type
func NetworkType(t string) slog.Attr {
	return slog.String(KeyNetworkType, t)
}

// Charging returns a slog.Attr for device charging state
func Charging(c bool) slog.Attr {
	return slog.Bool(KeyCharging, c)
}

// BatteryPct returns a slog.Attr for battery percentage
func BatteryPct(pct int) slog.Attr {
	return slog.Int(KeyBatteryPct, pct)
}

// FreeBytes returns a slog.Attr for free local storage bytes
func FreeBytes(n uint64) slog.Attr {
	return slog.Uint64(KeyFreeBytes, n)
}

// ----------------------------------------------------------------------------
// Storage
// ----------------------------------------------------------------------------

// StoreName returns a slog.Attr for the durable store backend name
func StoreName(name string) slog.Attr {
	return slog.String(KeyStoreName, name)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a taxonomy error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Operation returns a slog.Attr for a sub-operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
