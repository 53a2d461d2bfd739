package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/solatis/segmenter/internal/rules"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI translator.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAITranslator asks a chat-completion model for a rule document.
type OpenAITranslator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	prompt  string
	logger  *slog.Logger
}

// NewOpenAITranslator creates a translator whose prompt lists reg's fields.
func NewOpenAITranslator(reg *rules.Registry, cfg OpenAIConfig, logger *slog.Logger) (*OpenAITranslator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
		logger.Warn("openai model not set, using default", "model", cfg.Model)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger.Info("Initializing OpenAI translator", "model", cfg.Model)
	return &OpenAITranslator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		prompt:  systemPrompt(reg),
		logger:  logger,
	}, nil
}

// Name implements Translator.
func (o *OpenAITranslator) Name() string { return "openai" }

// Translate implements Translator.
func (o *OpenAITranslator) Translate(ctx context.Context, query string) (json.RawMessage, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	o.logger.Debug("translating query via OpenAI", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}
	o.logger.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)

	content := stripFence(resp.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("OpenAI returned non-JSON content")
	}
	return json.RawMessage(content), nil
}

// stripFence removes a markdown code fence around a JSON answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func systemPrompt(reg *rules.Registry) string {
	var b strings.Builder
	b.WriteString("You convert a marketer's description of a customer audience into a JSON rule tree.\n")
	b.WriteString("Respond with one JSON object and nothing else.\n\n")
	b.WriteString("Shape:\n")
	b.WriteString(`{"type":"group","combinator":"AND"|"OR","children":[ <rule or group>, ... ]}` + "\n")
	b.WriteString(`rule: {"type":"rule","field":<field>,"operator":<operator>,"value":<string>}` + "\n\n")
	b.WriteString("Fields (key, type, allowed operators):\n")
	for _, d := range reg.Fields() {
		ops := make([]string, len(d.Operators))
		for i, op := range d.Operators {
			ops[i] = string(op)
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", d.Key, d.Label, d.Type, strings.Join(ops, ", "))
	}
	b.WriteString("\nValues are strings. Numbers are plain digits. Dates are YYYY-MM-DD. ")
	b.WriteString(`"between" takes "min,max". "daysAgo" takes a whole number of days (6 months = 180). `)
	b.WriteString("Use only the fields and operators listed. Omit ids.\n")
	return b.String()
}
