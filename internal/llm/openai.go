package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/schema"
)

const generateSystemPrompt = `You are a senior data analyst.
Convert the user question into a SINGLE safe SQL SELECT query.

Rules:
- ONLY SELECT statements
- NO comments
- NO markdown
- Use ONLY provided schema
- Return ONLY raw SQL`

// OpenAIProvider generates SQL and explanations via the Chat Completions API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

func NewOpenAIProvider(apiKey, model string, temperature float64, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		timeout:     timeout,
	}
}

func (p *OpenAIProvider) GenerateSQL(ctx context.Context, question string, sch schema.Map) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Schema:\n%s\n\nQuestion:\n%s", sch.FormatForPrompt(), question)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(generateSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(p.temperature),
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		return "", domain.ErrUpstream("sql generation failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrUpstream("sql generation returned no choices")
	}

	return NormalizeSQL(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) Explain(ctx context.Context, question, sql string, columns []string, rows []map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sample := rows
	if len(sample) > 5 {
		sample = sample[:5]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		sampleJSON = []byte("[]")
	}

	prompt := fmt.Sprintf(`You are a helpful data analyst. Provide a concise, plain-English explanation of the results.
Keep it under 150 words. Be specific about numbers and trends.

User question:
%s

SQL executed:
%s

Sample of result rows:
%s

Explanation:`, question, sql, sampleJSON)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(512),
	})
	if err != nil {
		return "", domain.ErrUpstream("explanation failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrUpstream("explanation returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
