// Package logging configures the process-wide structured logger.
//
// New builds a *slog.Logger from a Config and is meant to be installed with
// slog.SetDefault before any component is constructed, since components
// capture slog.Default() with their "component" attribute at creation.
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	slog.SetDefault(logger)
//
// Records logged through the *Context methods carry the run id stored with
// WithRunID and, when a span is active, its trace and span ids.
//
// With RedactSecrets, string values that look like API keys or bearer
// tokens are masked, as is any attribute whose key names a credential:
//
//	"api_key", "sk-abc123xyz456" -> "api_key", "sk-a***"
package logging
