package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// ErrSynthesis wraps completion failures. Callers render a polite
// fallback message; raw provider errors never reach end users.
var ErrSynthesis = errors.New("synthesis error")

const defaultSystemTemplate = "You are a campus information assistant. " +
	"Answer strictly from the provided documents. " +
	"If the documents do not contain the answer, say you do not have that information. " +
	"The user you are assisting has the role: {role}."

// ChatConfig configures the answer synthesizer. Provider "groq" and
// "openai" both speak the OpenAI-compatible API; "ollama" runs local
// models.
type ChatConfig struct {
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	SystemTemplate string // {role} is replaced with the caller's role
}

// Turn is one prior question/answer pair of the conversation window.
type Turn struct {
	Question string
	Answer   string
}

// Request carries everything the model needs for one grounded answer.
// Context holds only fragments the retriever already cleared for the
// caller's role; nothing else may be added here.
type Request struct {
	Role     string
	Question string
	Context  []string
	History  []Turn
}

// ChatEngine generates grounded answers from retrieved fragments.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewChat creates a ChatEngine with the given configuration.
func NewChat(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "moonshotai/kimi-k2-instruct-0905"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		model, err = ollama.New(opts...)
	case "", "groq", "openai":
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Generate produces a single-shot answer for the request.
func (ce *ChatEngine) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	resp, err := ce.llm.GenerateContent(ctx, ce.buildMessages(req),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrSynthesis)
	}
	return resp.Choices[0].Content, nil
}

// GenerateStream produces an answer incrementally, calling fn with
// each text chunk as it arrives, and returns the assembled answer.
func (ce *ChatEngine) GenerateStream(ctx context.Context, req Request, fn func(chunk string) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	var sb strings.Builder
	resp, err := ce.llm.GenerateContent(ctx, ce.buildMessages(req),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			sb.Write(chunk)
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return sb.String(), fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	// Providers without streaming support deliver the full answer in
	// one choice instead of through the callback.
	if sb.Len() == 0 && resp != nil && len(resp.Choices) > 0 {
		text := resp.Choices[0].Content
		if err := fn(text); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
		}
		return text, nil
	}
	return sb.String(), nil
}

func (ce *ChatEngine) buildMessages(req Request) []llms.MessageContent {
	system := strings.ReplaceAll(ce.config.SystemTemplate, "{role}", req.Role)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
	}
	for _, turn := range req.History {
		content = append(content,
			llms.TextParts(schema.ChatMessageTypeHuman, turn.Question),
			llms.TextParts(schema.ChatMessageTypeAI, turn.Answer),
		)
	}

	var sb strings.Builder
	for i, fragment := range req.Context {
		fmt.Fprintf(&sb, "Document %d:\n%s\n\n", i+1, fragment)
	}
	fmt.Fprintf(&sb, "Question: %s", req.Question)
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, sb.String()))

	return content
}
