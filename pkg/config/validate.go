package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "broker.max_retries").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Has reports whether any error concerns field or one of its children.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field || strings.HasPrefix(fe.Field, field+".") || strings.HasPrefix(fe.Field, field+"[") {
			return true
		}
	}
	return false
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the entire configuration and returns a ValidationError
// if any rule fails. Struct tags are checked first; the skill catalogue,
// theory, rule table and fallbacks are then built to surface semantic
// errors. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStruct(cfg)...)
	errs = append(errs, validateCatalogue(cfg)...)
	errs = append(errs, validateAgents(cfg.Agents)...)
	errs = append(errs, validateRuntime(cfg)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateStruct(cfg *Config) []FieldError {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "config", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, FieldError{Field: field, Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// validateCatalogue builds the registry, theory and pipeline.
func validateCatalogue(cfg *Config) []FieldError {
	var errs []FieldError

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return append(errs, FieldError{Field: "skills", Message: err.Error()})
	}

	th, err := cfg.BuildTheory()
	if err != nil {
		errs = append(errs, FieldError{Field: "theory.name", Message: err.Error()})
	} else if _, err := cfg.BuildPipeline(reg, th); err != nil {
		errs = append(errs, FieldError{Field: "rules", Message: err.Error()})
	}

	if err := cfg.BrokerConfig().Validate(reg); err != nil {
		errs = append(errs, FieldError{Field: "fallbacks", Message: err.Error()})
	}

	for i, a := range cfg.Agents {
		if a.Type != "" && len(reg.Options(a.Type)) == 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("agents[%d].type", i),
				Message: fmt.Sprintf("no skill is eligible for agent type %q", a.Type),
			})
		}
	}
	return errs
}

func validateAgents(agents []AgentConfig) []FieldError {
	seeds := make([]environment.Agent, len(agents))
	for i, a := range agents {
		seeds[i] = environment.Agent{ID: a.ID, Type: a.Type}
	}
	if err := environment.Validate(seeds); err != nil {
		return []FieldError{{Field: "agents", Message: err.Error()}}
	}
	return nil
}

func validateRuntime(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Model.Adapter == "scripted" && cfg.Model.Script == "" {
		errs = append(errs, FieldError{Field: "model.script", Message: "script is required for the scripted adapter"})
	}

	if cfg.Environment.Backend == "sqlite" && cfg.Environment.Path == "" {
		errs = append(errs, FieldError{Field: "environment.path", Message: "path is required for the sqlite backend"})
	}
	for name, amount := range cfg.Environment.Resources {
		if amount < 0 {
			errs = append(errs, FieldError{
				Field:   "environment.resources." + name,
				Message: "initial amount cannot be negative",
			})
		}
	}

	if cfg.Trace.Backend != "memory" && cfg.Trace.Path == "" {
		errs = append(errs, FieldError{Field: "trace.path", Message: fmt.Sprintf("path is required for the %s backend", cfg.Trace.Backend)})
	}
	if cfg.Trace.AuditSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Trace.AuditSchedule); err != nil {
			errs = append(errs, FieldError{Field: "trace.audit_schedule", Message: err.Error()})
		}
	}

	if cfg.Simulation.PromptTemplate != "" {
		if _, err := template.New("prompt").Parse(cfg.Simulation.PromptTemplate); err != nil {
			errs = append(errs, FieldError{Field: "simulation.prompt_template", Message: err.Error()})
		}
	}

	if t := cfg.Telemetry.Tracing; t.Enabled && t.Exporter == "otlp" && t.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required for the otlp exporter"})
	}
	return errs
}
