// wagf runs governed agent simulations: every decision a model proposes for
// an agent is validated against the configured rule table, retried with
// corrective feedback, and committed only as an admissible command.
//
// Usage:
//
//	# Run the simulation described by wagf.yaml
//	wagf run
//
//	# Run a configuration pinned to a git revision
//	wagf run --source-repo ./rules --source-revision v3
//
//	# Check a configuration without running it
//	wagf validate --config examples/flood/wagf.yaml
//
//	# Inspect the traces of a run
//	wagf trace summary --path data/traces.jsonl
//	wagf trace query --outcome RETRY_EXHAUSTED_FALLBACK --limit 20
//	wagf trace export --format csv -o traces.csv
//	wagf trace follow
package main

func main() {
	Execute()
}
