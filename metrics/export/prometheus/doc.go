// Package prometheus renders medauth counters in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [medauth.Engine] and exposes an
// [http.Handler] that serves every engine counter. Counter names are
// prefixed medauth_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount
//     the Handler.
//   - Mutate engine state.
package prometheus
