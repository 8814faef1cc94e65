// Package openai implements the model adapter against any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/proposal"
)

const defaultSystemPrompt = `You are an agent in a simulation. Choose exactly one skill from the options.
Answer with a single JSON object: {"skill": "<skill id>", "reasoning": {"<construct>": "<VL|L|M|H|VH>"}, "confidence": <0..1>}.`

// Config configures the adapter.
type Config struct {
	// APIKey authenticates requests. When empty, OPENAI_API_KEY is used.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for a local server.
	BaseURL string

	// Model is the model name. Default: "gpt-4o-mini".
	Model string

	// SystemPrompt replaces the default system prompt.
	SystemPrompt string

	Temperature float32
	MaxTokens   int

	// Seed requests deterministic sampling where the server supports it.
	// Zero leaves sampling unseeded.
	Seed int
}

// Adapter implements governance.Proposer.
type Adapter struct {
	client *openai.Client
	config Config
	parser *proposal.Parser
	logger *slog.Logger
}

// New creates an adapter. A nil parser uses the zero Parser.
func New(cfg Config, parser *proposal.Parser) (*Adapter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai adapter: no API key configured: %w", governance.ErrAdapterUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if parser == nil {
		parser = &proposal.Parser{}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger := slog.Default().With("component", "adapters.openai")
	logger.Info("initializing openai adapter", "model", cfg.Model, "base_url", clientCfg.BaseURL)

	return &Adapter{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		parser: parser,
		logger: logger,
	}, nil
}

// Propose sends the rendered context and feedback to the model and parses
// the answer.
func (a *Adapter) Propose(ctx context.Context, dc *governance.DecisionContext, fb *governance.Feedback) (*governance.SkillProposal, error) {
	req := openai.ChatCompletionRequest{
		Model: a.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: RenderPrompt(dc, fb)},
		},
		Temperature: a.config.Temperature,
	}
	if a.config.MaxTokens > 0 {
		req.MaxCompletionTokens = a.config.MaxTokens
	}
	if a.config.Seed != 0 {
		seed := a.config.Seed
		req.Seed = &seed
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if unavailable(err) {
			a.logger.Error("openai endpoint unavailable", "agent_id", dc.AgentID, "error", err)
			return nil, fmt.Errorf("openai: %w: %v", governance.ErrAdapterUnavailable, err)
		}
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, governance.NewParseError("no choices in response", "", nil)
	}
	a.logger.Debug("received completion",
		"agent_id", dc.AgentID,
		"step", dc.Step,
		"finish_reason", resp.Choices[0].FinishReason,
	)

	return a.parser.Parse(resp.Choices[0].Message.Content, dc.Options)
}

// unavailable reports whether err means no request can succeed.
func unavailable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return permanentStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return permanentStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func permanentStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound
}

// RenderPrompt builds the user message from the decision context. String
// payloads are used verbatim; other payloads are rendered as JSON.
func RenderPrompt(dc *governance.DecisionContext, fb *governance.Feedback) string {
	var b strings.Builder

	switch p := dc.Payload.(type) {
	case nil:
	case string:
		b.WriteString(p)
		b.WriteString("\n\n")
	default:
		if data, err := json.MarshalIndent(p, "", "  "); err == nil {
			b.WriteString("Context:\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "You are agent %s (%s) at step %d.\n", dc.AgentID, dc.AgentType, dc.Step)
	b.WriteString("Options:\n")
	for i, o := range dc.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o)
	}

	if fb != nil && fb.Text != "" {
		b.WriteString("\nYour previous answer was rejected:\n")
		b.WriteString(fb.Text)
		b.WriteString("\n")
	}
	return b.String()
}
