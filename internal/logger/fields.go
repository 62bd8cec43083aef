package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Container & Session
	// ========================================================================
	KeyContainer = "container"  // Container document identifier
	KeyClient    = "client_id"  // Client identifier (the summarizer client)
	KeySession   = "session_id" // Session identifier
	KeyRunID     = "run_id"     // GC run identifier

	// ========================================================================
	// GC Nodes
	// ========================================================================
	KeyNode        = "node"         // GC node path (e.g. /ds1/dds2)
	KeyNodeType    = "node_type"    // datastore, blob, other
	KeyPhase       = "phase"        // unreferenced, inactive, tombstone-ready, sweep-ready
	KeyRoutes      = "routes"       // Number of outbound routes
	KeyPackagePath = "package_path" // Node package path (telemetry only)
	KeyElapsedMs   = "elapsed_ms"   // Time since the node became unreferenced

	// ========================================================================
	// Summary Persistence
	// ========================================================================
	KeyBlobKey   = "blob_key"   // Summary blob key
	KeyGCVersion = "gc_version" // GC schema/feature version
	KeyBucket    = "bucket"     // Cloud bucket name (S3)
	KeyRegion    = "region"     // Cloud region
	KeyStoreType = "store_type" // Store type: memory, fs, badger, s3

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCount      = "count"       // Generic count
	KeyReason     = "reason"      // Node update reason: loaded, changed
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Container returns a slog.Attr for the container document identifier
func Container(id string) slog.Attr {
	return slog.String(KeyContainer, id)
}

// RunID returns a slog.Attr for a GC run identifier
func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}

// Node returns a slog.Attr for a GC node path
func Node(path string) slog.Attr {
	return slog.String(KeyNode, path)
}

// NodeType returns a slog.Attr for a GC node type
func NodeType(t string) slog.Attr {
	return slog.String(KeyNodeType, t)
}

// Phase returns a slog.Attr for an unreferenced phase
func Phase(p string) slog.Attr {
	return slog.String(KeyPhase, p)
}

// BlobKey returns a slog.Attr for a summary blob key
func BlobKey(key string) slog.Attr {
	return slog.String(KeyBlobKey, key)
}

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
