package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
)

type Engine struct {
	Model   string
	BaseURL string // пусто - api.openai.com
	httpc   *http.Client
}

func New(model, baseURL string) *Engine {
	return &Engine{
		Model:   strings.TrimSpace(model),
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{}, // дедлайн задаёт ctx вызова (ANALYZE_TIMEOUT)
	}
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Analyze(ctx context.Context, in types.AnalyzeRequest) (string, error) {
	if strings.TrimSpace(in.APIKey) == "" {
		return "", &types.TransportError{Engine: e.Name(), Status: http.StatusUnauthorized, Err: errors.New("api key is empty")}
	}
	cfg := goopenai.DefaultConfig(in.APIKey)
	if e.BaseURL != "" {
		cfg.BaseURL = e.BaseURL
	}
	cfg.HTTPClient = e.httpc
	cl := goopenai.NewClientWithConfig(cfg)

	req := goopenai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: in.Prompt},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    encode.MakeDataURL(in.MIMEType, in.ImageB64),
							Detail: goopenai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   "ai_image_analysis",
				Schema: ResponseSchema(),
				Strict: true,
			},
		},
	}

	resp, err := cl.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", transportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ResponseSchema - strict json_schema: все поля обязательны, лишние запрещены.
func ResponseSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			types.FieldIsAIGenerated: {
				Type:        jsonschema.Boolean,
				Description: types.DescIsAIGenerated,
			},
			types.FieldConfidenceScore: {
				Type:        jsonschema.Integer,
				Description: types.DescConfidenceScore,
			},
			types.FieldReasoning: {
				Type:        jsonschema.String,
				Description: types.DescReasoning,
			},
			types.FieldTelltaleSigns: {
				Type:        jsonschema.Array,
				Description: types.DescTelltaleSigns,
				Items: &jsonschema.Definition{
					Type:        jsonschema.String,
					Description: types.DescTelltaleSign,
				},
			},
		},
		Required:             append([]string(nil), types.RequiredFields...),
		AdditionalProperties: false,
	}
}

func transportError(err error) error {
	te := &types.TransportError{Engine: "gpt", Err: err}

	var ae *goopenai.APIError
	var re *goopenai.RequestError
	switch {
	case errors.As(err, &ae):
		te.Status = ae.HTTPStatusCode
		if code, ok := ae.Code.(string); ok {
			te.Reason = code
		}
	case errors.As(err, &re):
		te.Status = re.HTTPStatusCode
	}
	return te
}
