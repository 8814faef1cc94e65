// Package config loads and validates the YAML configuration of a governed
// simulation run.
//
// A single file describes the skill catalogue, the ordered rule table, the
// theory, the agents and the runtime settings of the broker, environment,
// model adapter, trace store and telemetry.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("wagf.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("wagf.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention WAGF_SECTION_FIELD:
//
//   - WAGF_BROKER_MAX_RETRIES overrides broker.max_retries
//   - WAGF_MODEL_API_KEY overrides model.api_key
//   - WAGF_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Struct tags are checked with go-playground/validator, then the registry,
// theory and rule pipeline are built so that unknown skills in rule scopes,
// bad thresholds or CEL errors are reported before a run starts. Errors
// carry field paths:
//
//	configuration validation failed with 2 errors:
//	  - broker.max_retries: must be at least 1
//	  - rules: rule elevation_threat: unknown skill "elevate_hous"
//
// # Rule-Set Version
//
// Every trace record carries the rule-set version. It is taken from
// rule_set_version when set, from the commit when the file is loaded
// through a git source, and otherwise from a content hash of the file.
//
// # Example Configuration
//
//	skills:
//	  - id: do_nothing
//	    required_fields: [threat, coping]
//	  - id: elevate_house
//	    aliases: [elevate]
//	    required_fields: [threat, coping]
//	    costs: {subsidy_pool: 1}
//	    effects: {elevated: true}
//
//	rules:
//	  - id: elevation_threat
//	    kind: threshold
//	    skills: [elevate_house]
//	    construct: threat
//	    min_level: M
//
//	agents:
//	  - {id: h1, type: household_owner}
//
//	model:
//	  adapter: scripted
//	  script: script.yaml
package config
