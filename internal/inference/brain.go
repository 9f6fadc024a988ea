package inference

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

const personalityPrompt = `You are an advanced home assistant with a polite,
slightly formal register. Be concise, confirm destructive actions before
acting and adapt tone to urgency. Always stay helpful and informative.`

// intentKeywords drives the cheap keyword classifier used both as a fast
// path and as the fallback when no LLM is configured.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"greeting", []string{"hello", "hi", "hey", "good morning", "good evening"}},
	{"query_weather", []string{"weather", "temperature", "forecast"}},
	{"query_time", []string{"time", "what time", "clock"}},
	{"query_status", []string{"status", "system", "how are you"}},
	{"command_execute", []string{"run", "execute", "start", "launch"}},
	{"command_create", []string{"create", "generate", "make", "build"}},
	{"query_search", []string{"search", "find", "look for"}},
	{"conversation", []string{"tell me about", "explain", "what is"}},
}

var fallbackResponses = map[string][]string{
	"greeting": {
		"Good day. How may I assist you?",
		"Welcome back. All systems operational.",
		"At your service. What can I do for you today?",
	},
	"query_status": {
		"All systems operational. Voice recognition online, visual systems active.",
	},
	"default": {
		"Certainly. I'm processing that request.",
		"I understand. How may I assist further?",
		"At your service. Please provide more details.",
	},
}

// OpenAIBrain answers commands through the OpenAI chat API and degrades to
// canned responses when no client is configured or the call fails.
type OpenAIBrain struct {
	client *openai.Client
	model  string
}

func NewOpenAIBrain(apiKey, model string) *OpenAIBrain {
	b := &OpenAIBrain{model: model}
	if apiKey == "" {
		log.Info().Str("module", "inference.brain").Msg("no api key, brain running in fallback mode")
		return b
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	b.client = &c
	log.Info().Str("module", "inference.brain").Str("model", model).Msg("brain adapter initialized")
	return b
}

func (b *OpenAIBrain) Ready() bool { return true }

// Provider names the active generation backend.
func (b *OpenAIBrain) Provider() string {
	if b.client != nil {
		return "openai"
	}
	return "fallback"
}

func (b *OpenAIBrain) Model() string {
	if b.client != nil {
		return b.model
	}
	return "none"
}

func (b *OpenAIBrain) ProcessCommand(ctx context.Context, text, userID string, extra map[string]any) (CommandResult, error) {
	intent := classifyIntent(text)

	reply, err := b.generate(ctx, text, extra)
	if err != nil {
		log.Error().Err(err).Str("module", "inference.brain").Str("user", userID).Msg("generation failed, falling back")
		reply = fallbackResponse(intent)
	}

	return CommandResult{
		Text:       reply,
		Intent:     intent,
		Actions:    extractActions(intent),
		Confidence: 0.95,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (b *OpenAIBrain) generate(ctx context.Context, text string, extra map[string]any) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("no llm client configured")
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(personalityPrompt),
	}
	if len(extra) > 0 {
		var sb strings.Builder
		sb.WriteString("Additional context:\n")
		for k, v := range extra {
			fmt.Fprintf(&sb, "- %s: %v\n", k, v)
		}
		messages = append(messages, openai.SystemMessage(sb.String()))
	}
	messages = append(messages, openai.UserMessage(text))

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.model),
		Messages:    messages,
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *OpenAIBrain) SummarizeConversation(ctx context.Context, history []Turn) (string, error) {
	if b.client == nil {
		return "Conversation summary unavailable.", nil
	}
	var sb strings.Builder
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Summarize the following conversation concisely:"),
			openai.UserMessage(sb.String()),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "inference.brain").Msg("summary generation failed")
		return "Conversation summary unavailable.", nil
	}
	if len(resp.Choices) == 0 {
		return "Conversation summary unavailable.", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return "general_query"
}

func fallbackResponse(intent string) string {
	if intent == "query_time" {
		return fmt.Sprintf("The current time is %s.", time.Now().Format("3:04 PM"))
	}
	candidates, ok := fallbackResponses[intent]
	if !ok {
		candidates = fallbackResponses["default"]
	}
	return candidates[rand.Intn(len(candidates))]
}

func extractActions(intent string) []Action {
	switch {
	case strings.HasPrefix(intent, "command_execute"):
		return []Action{{Type: "execute", Details: "Parse and execute command"}}
	case strings.HasPrefix(intent, "command_create"):
		return []Action{{Type: "create", Details: "Generate and create resource"}}
	}
	return []Action{}
}
