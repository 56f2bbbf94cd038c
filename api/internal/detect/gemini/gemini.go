package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-detector/api/internal/detect/types"
)

type Engine struct {
	Model    string
	Endpoint string // пусто - боевой generativelanguage.googleapis.com
}

func New(model, endpoint string) *Engine {
	return &Engine{
		Model:    strings.TrimSpace(model),
		Endpoint: strings.TrimSpace(endpoint),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Analyze отправляет инструкцию + картинку одним запросом и возвращает текст ответа.
// Ключ приходит в запросе (пользовательский), поэтому клиент создаётся на каждый вызов.
func (e *Engine) Analyze(ctx context.Context, in types.AnalyzeRequest) (string, error) {
	if strings.TrimSpace(in.APIKey) == "" {
		return "", &types.TransportError{Engine: e.Name(), Status: http.StatusUnauthorized, Err: errors.New("api key is empty")}
	}
	img, err := base64.StdEncoding.DecodeString(in.ImageB64)
	if err != nil {
		return "", types.NewError(types.KindMalformedEncoding, "gemini: bad base64", err)
	}

	opts := []option.ClientOption{option.WithAPIKey(in.APIKey)}
	if e.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(e.Endpoint))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", transportError(err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(),
	}

	resp, err := m.GenerateContent(ctx,
		genai.Text(in.Prompt),
		genai.Blob{MIMEType: in.MIMEType, Data: img},
	)
	if err != nil {
		return "", transportError(err)
	}
	return firstText(resp), nil
}

// ResponseSchema - схема, которой ограничиваем ответ модели.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			types.FieldIsAIGenerated: {
				Type:        genai.TypeBoolean,
				Description: types.DescIsAIGenerated,
			},
			types.FieldConfidenceScore: {
				Type:        genai.TypeInteger,
				Description: types.DescConfidenceScore,
			},
			types.FieldReasoning: {
				Type:        genai.TypeString,
				Description: types.DescReasoning,
			},
			types.FieldTelltaleSigns: {
				Type:        genai.TypeArray,
				Description: types.DescTelltaleSigns,
				Items: &genai.Schema{
					Type:        genai.TypeString,
					Description: types.DescTelltaleSign,
				},
			},
		},
		Required: append([]string(nil), types.RequiredFields...),
	}
}

// transportError вытаскивает HTTP-статус и причину из ошибок google-клиента.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	te := &types.TransportError{Engine: "gemini", Err: err}

	var ae *apierror.APIError
	if errors.As(err, &ae) {
		te.Status = ae.HTTPCode()
		te.Reason = ae.Reason()
		if te.Status <= 0 {
			te.Status = 0
			if st := ae.GRPCStatus(); st != nil {
				te.Status = httpFromCode(st.Code())
			}
		}
	}
	var ge *googleapi.Error
	if te.Status == 0 && errors.As(err, &ge) {
		te.Status = ge.Code
		for _, it := range ge.Errors {
			if it.Reason != "" {
				te.Reason = it.Reason
				break
			}
		}
	}
	if te.Status == 0 {
		if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
			te.Status = httpFromCode(st.Code())
		}
	}
	return te
}

func httpFromCode(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
