// Package gemini implements llm.Backend with Google Gemini chat sessions.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/service/llm"
)

// DefaultSystemInstruction asks for a JSON record the extractor can parse.
const DefaultSystemInstruction = "You are an emergency call assistant. From the running call transcript, " +
	"work out where the caller is and what the emergency is. Always answer with a single JSON object " +
	`with the keys "location", "emergency" and "output". Use null for anything the caller has not said yet. ` +
	`"output" is what will be spoken back to the caller: one or two short, calm sentences under 40 words, ` +
	"asking for the missing detail or confirming that help is on the way."

// Config holds model and sampling settings.
type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Temperature       float32
	TopP              float32
	TopK              float32
	MaxOutputTokens   int32
	Timeout           time.Duration
}

// DefaultConfig returns the model defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gemini-2.5-flash",
		SystemInstruction: DefaultSystemInstruction,
		Temperature:       1,
		TopP:              0.95,
		TopK:              40,
		MaxOutputTokens:   8192,
		Timeout:           20 * time.Second,
	}
}

// seedHistory primes each chat with one worked exchange.
func seedHistory() []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromText("User: My car hit a pole and my friend is bleeding\n", genai.RoleUser),
		genai.NewContentFromText(`{"location": null, "emergency": "road accident with an injured passenger", `+
			`"output": "I am sending help. Tell me exactly where you are, a street name or a landmark."}`, genai.RoleModel),
	}
}

// chatSender is the part of *genai.Chat used here.
type chatSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Backend creates one Gemini chat per conversation.
type Backend struct {
	cfg     Config
	newChat func(ctx context.Context) (chatSender, error)
}

// New creates the Gemini client. A missing API key is not an error here:
// the backend is still returned and every conversation fails with
// faults.ErrBackendUnavailable so calls degrade instead of the process
// refusing to start.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	b := &Backend{cfg: cfg}
	if cfg.APIKey == "" {
		b.newChat = func(context.Context) (chatSender, error) {
			return nil, fmt.Errorf("%w: gemini: missing GEMINI_API_KEY", faults.ErrBackendUnavailable)
		}
		return b, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		TopP:            genai.Ptr(cfg.TopP),
		TopK:            genai.Ptr(cfg.TopK),
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if cfg.SystemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}

	b.newChat = func(ctx context.Context) (chatSender, error) {
		chat, err := client.Chats.Create(ctx, cfg.Model, genCfg, seedHistory())
		if err != nil {
			return nil, fmt.Errorf("%w: gemini: create chat: %v", faults.ErrBackendUnavailable, err)
		}
		return chat, nil
	}
	return b, nil
}

func (b *Backend) Name() string { return "gemini" }

// NewConversation starts a fresh chat.
func (b *Backend) NewConversation(ctx context.Context) (llm.Conversation, error) {
	chat, err := b.newChat(ctx)
	if err != nil {
		return nil, err
	}
	return &conversation{chat: chat, timeout: b.cfg.Timeout}, nil
}

type conversation struct {
	chat    chatSender
	timeout time.Duration
}

func (c *conversation) Send(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", faults.ErrBackendUnavailable, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini: empty reply", faults.ErrBackendUnavailable)
	}
	return text, nil
}

// Close drops the chat; genai chats hold no server-side resources.
func (c *conversation) Close() error {
	c.chat = nil
	return nil
}
