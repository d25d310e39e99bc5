package observer

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/haasonsaas/companion/pkg/models"
)

// OpenAIAnalyzer implements Analyzer using a cheap model with a
// JSON-schema-constrained response, matching spec.md §4.6's
// "structured output, no tool calls" contract. Grounded on the
// teacher's direct sashabaranov/go-openai usage for structured
// completions.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer constructs an analyzer. model is typically a small,
// fast model since this call runs once per turn off the critical path.
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{client: openai.NewClient(apiKey), model: model}
}

var analysisSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"title":                {Type: jsonschema.String},
		"summary":              {Type: jsonschema.String},
		"activity":             {Type: jsonschema.String},
		"exchange_description": {Type: jsonschema.String},
	},
	Required: []string{"activity", "exchange_description"},
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, task models.PostTurnTask) (Analysis, error) {
	prompt := fmt.Sprintf(
		"User message:\n%s\n\nAssistant reply:\n%s\n\nTool calls:\n%s\n\nSummarize this exchange.",
		task.UserMessage, task.AssistantReply, task.ToolCallSummary,
	)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "turn_analysis",
				Schema: analysisSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("observer analysis call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, fmt.Errorf("observer analysis call returned no choices")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("parse observer analysis response: %w", err)
	}
	analysis.BridgeSessionID = resp.ID
	return analysis, nil
}
