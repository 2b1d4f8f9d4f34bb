package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const defaultLLMModel = "gpt-4o-mini"

// LLMDetector is a fallback Detector for deployments without access to the
// dedicated classification endpoint. It asks an openai-compatible model for a
// bare true/false, so it never reports matched terms.
type LLMDetector struct {
	client *openai.Client
	model  string
	logger *log.Entry
}

func NewLLMDetector(apiKey, model, baseURL string, logger *log.Entry) *LLMDetector {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	if model == "" {
		model = defaultLLMModel
	}
	return &LLMDetector{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

func (d *LLMDetector) Detect(ctx context.Context, text string) (*Verdict, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a content moderation system. Analyze the following message and respond with true if it contains forbidden or abusive content, false if it does not. Respond with the single word only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices available")
	}

	flagged := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content)) == "true"
	return &Verdict{
		IsViolation:  flagged,
		OriginalText: text,
	}, nil
}
