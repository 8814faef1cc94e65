package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies WAGF_* environment variable overrides before validating.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults. It does not validate. Relative
// paths in the configuration are resolved against baseDir. Unknown keys are
// rejected so typos in rule tables surface early.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("configuration is empty")
		}
		return nil, err
	}
	cfg.baseDir = baseDir
	ApplyDefaults(&cfg)
	if cfg.RuleSetVersion == "" {
		cfg.RuleSetVersion = ContentVersion(data)
	}
	return &cfg, nil
}

// ContentVersion derives a rule-set version from configuration bytes.
func ContentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

// ResolvePath resolves p against the directory of the loaded file.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// ApplyEnvOverrides applies WAGF_SECTION_FIELD environment variables.
// Values that fail to parse are ignored.
func ApplyEnvOverrides(cfg *Config) {
	setString("WAGF_RULE_SET_VERSION", &cfg.RuleSetVersion)

	setInt("WAGF_BROKER_MAX_RETRIES", &cfg.Broker.MaxRetries)
	setDuration("WAGF_BROKER_PROPOSE_TIMEOUT", &cfg.Broker.ProposeTimeout)
	setFloat("WAGF_BROKER_RATE_LIMIT", &cfg.Broker.RateLimit)
	setInt("WAGF_BROKER_BURST", &cfg.Broker.Burst)
	setString("WAGF_BROKER_DEFAULT_FALLBACK", &cfg.Broker.DefaultFallback)

	setString("WAGF_THEORY_NAME", &cfg.Theory.Name)

	setInt("WAGF_SIMULATION_STEPS", &cfg.Simulation.Steps)
	setInt("WAGF_SIMULATION_WORKERS", &cfg.Simulation.Workers)
	setInt("WAGF_SIMULATION_SEED", &cfg.Simulation.Seed)

	setString("WAGF_ENVIRONMENT_BACKEND", &cfg.Environment.Backend)
	setString("WAGF_ENVIRONMENT_PATH", &cfg.Environment.Path)

	setString("WAGF_MODEL_ADAPTER", &cfg.Model.Adapter)
	setString("WAGF_MODEL_SCRIPT", &cfg.Model.Script)
	setString("WAGF_MODEL_BASE_URL", &cfg.Model.BaseURL)
	setString("WAGF_MODEL_API_KEY", &cfg.Model.APIKey)
	setString("WAGF_MODEL_NAME", &cfg.Model.Name)

	setString("WAGF_TRACE_BACKEND", &cfg.Trace.Backend)
	setString("WAGF_TRACE_PATH", &cfg.Trace.Path)
	setBool("WAGF_TRACE_SYNC_WRITES", &cfg.Trace.SyncWrites)
	setString("WAGF_TRACE_AUDIT_SCHEDULE", &cfg.Trace.AuditSchedule)

	setString("WAGF_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("WAGF_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("WAGF_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setString("WAGF_TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	setBool("WAGF_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	setString("WAGF_TELEMETRY_TRACING_EXPORTER", &cfg.Telemetry.Tracing.Exporter)
	setString("WAGF_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	setString("WAGF_SOURCE_REPOSITORY", &cfg.Source.Repository)
	setString("WAGF_SOURCE_REVISION", &cfg.Source.Revision)
	setString("WAGF_SOURCE_PATH", &cfg.Source.Path)
	setString("WAGF_SOURCE_TOKEN", &cfg.Source.Token)
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
