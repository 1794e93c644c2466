// Package metrics aggregates everything a checkout race run observes.
//
// The [Collector] is the single source for the end-of-run summary and for
// threshold evaluation. It tracks:
//   - HTTP request latency in an HDR histogram (http_req_duration)
//   - HTTP failures, meaning transport errors or statuses outside 200-399 (http_req_failed)
//   - Status code buckets per scenario
//   - Named boolean rates such as race_condition_failures
//   - Named checks and their pass/fail counts
//   - Iterations and dropped iterations per scenario
//
// # Recording
//
// Producers talk to the [Recorder] interface so that the same observation can
// be mirrored into several sinks:
//
//	collector := metrics.NewCollector()
//	exporter := metrics.NewPromExporter()
//	rec := metrics.Tee(collector, exporter)
//
//	rec.RecordRequest(latency, err, &metrics.RequestMetadata{Scenario: "burst_test", StatusCode: 400})
//	rec.AddRate("burst_test", "stock_exhausted_rate", true)
//	rec.RecordCheck("burst_test", "status is 200", false)
//
// # Thread Safety
//
// All recorders are safe for concurrent use by any number of virtual users.
package metrics
