// Package instrumentation provides OpenTelemetry instrumentation for the
// invoice pipeline.
//
// A run is a short-lived batch job, so every exporter is flushed when the
// provider shuts down at the end of the command:
//   - OpenTelemetry metrics for pipeline stages, invoice totals, OAuth and
//     Google API calls
//   - Tracing with one span per pipeline stage and per Google API call
//   - Prometheus export by pushing to a Pushgateway (there is no scrape endpoint)
//   - OTLP and stdout export for local debugging or a collector
//
// # Metrics
//
// Pipeline Metrics:
//   - invoice_runs_total: Counter of runs by result (success, no_events, error)
//   - pipeline_stage_duration_seconds: Histogram of stage durations by stage and status
//   - invoice_rows_total: Counter of invoice rows written
//   - invoice_hours_total: Counter of billed hours written
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of interactive authorizations by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// # Configuration
//
// Instrumentation is disabled unless INSTRUMENTATION_ENABLED=true. See Config
// for the remaining environment variables.
package instrumentation
