// Package metrics exports governance metrics to Prometheus.
//
// A Collector observes every attempt and decision made by the broker and
// keeps its metrics on its own registry:
//
//   - Decision metrics: outcomes by agent type, attempts per decision,
//     decision latency, committed skills, execution failures
//   - Attempt metrics: adapter calls by event and their latency; timeouts
//     show up as event="timeout"
//   - Rule metrics: failures by rule and severity, skipped rules
//
// # Usage
//
//	collector := metrics.NewCollector(metrics.Config{}, nil)
//	b, err := broker.New(cfg, reg, pipeline, proposer, env,
//		broker.WithObserver(collector))
//
//	srv, err := collector.Serve("127.0.0.1:9464", "/metrics")
//	defer srv.Shutdown(context.Background())
//
// # Exposition
//
//	# HELP wagf_broker_decisions_total Total number of governed decisions by outcome
//	# TYPE wagf_broker_decisions_total counter
//	wagf_broker_decisions_total{agent_type="household_owner",outcome="RETRY_SUCCESS"} 12
package metrics
