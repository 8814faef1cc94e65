// Package tracing installs an OpenTelemetry tracer provider for governed
// decisions.
//
// The broker starts one span per agent-step from a package-level tracer
// obtained with otel.Tracer. Until New installs a provider those spans are
// no-ops; afterwards they are sampled by Config.SampleRatio and exported
// to stdout or an OTLP gRPC collector.
//
// Each decision span carries the run, agent and step ids, one "attempt"
// event per retry attempt, and the final outcome and skill:
//
//	governance.Decide
//	  wagf.run_id=7f3c... wagf.agent_id=h1 wagf.step=3
//	  event attempt wagf.attempt=0 wagf.result="proposed: elevation_threat"
//	  event attempt wagf.attempt=1 wagf.result=proposed
//	  wagf.outcome=RETRY_SUCCESS wagf.skill=elevate_house
package tracing
