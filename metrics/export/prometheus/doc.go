// Package prometheus renders goIdentity metrics in Prometheus text format.
//
// [NewExporter] wraps an [goIdentity.Engine] and [Exporter.Handler] serves
// every counter and the login latency histogram. Counter names carry the
// goidentity_ prefix and a _total suffix. The audit and mail side channels
// are exported next to the engine counters.
//
// # What this package must NOT do
//
//   - Register in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
