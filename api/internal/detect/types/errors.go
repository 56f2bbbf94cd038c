package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failed encode or analysis attempt.
type Kind int

const (
	KindUnknown Kind = iota
	KindRead
	KindMalformedEncoding
	KindUnsupportedType
	KindResponseFormat
	KindSchemaViolation
	KindRateLimit
	KindAuth
	KindServiceUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindRead:               "read_error",
	KindMalformedEncoding:  "malformed_encoding",
	KindUnsupportedType:    "unsupported_type",
	KindResponseFormat:     "response_format",
	KindSchemaViolation:    "schema_violation",
	KindRateLimit:          "rate_limit",
	KindAuth:               "auth",
	KindServiceUnavailable: "service_unavailable",
}

var kindMessages = map[Kind]string{
	KindUnknown:            "An unknown error occurred during analysis.",
	KindRead:               "Could not read the image file.",
	KindMalformedEncoding:  "Invalid file format.",
	KindUnsupportedType:    "Unsupported image type. Please use PNG, JPEG or WEBP.",
	KindResponseFormat:     "The analysis service returned an unparseable response.",
	KindSchemaViolation:    "API returned an invalid data structure.",
	KindRateLimit:          "API rate limit exceeded. Please try again later.",
	KindAuth:               "The API key is missing or invalid. Please enter a valid key.",
	KindServiceUnavailable: "Failed to analyze image. The API may be unavailable or the image format is unsupported.",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Message - короткий текст для пользователя.
func (k Kind) Message() string {
	if s, ok := kindMessages[k]; ok {
		return s
	}
	return kindMessages[KindUnknown]
}

// Local reports whether the failure happened before any remote call.
func (k Kind) Local() bool {
	return k == KindRead || k == KindMalformedEncoding || k == KindUnsupportedType
}

// Error is the single error type surfaced to callers of the encoder and the analyzer.
type Error struct {
	Kind Kind
	Msg  string // подробности для логов; пользователю показываем Kind.Message()
	Err  error
}

func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает только Kind, чтобы работало errors.Is(err, types.ErrRateLimit).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrRead               = &Error{Kind: KindRead}
	ErrMalformedEncoding  = &Error{Kind: KindMalformedEncoding}
	ErrUnsupportedType    = &Error{Kind: KindUnsupportedType}
	ErrResponseFormat     = &Error{Kind: KindResponseFormat}
	ErrSchemaViolation    = &Error{Kind: KindSchemaViolation}
	ErrRateLimit          = &Error{Kind: KindRateLimit}
	ErrAuth               = &Error{Kind: KindAuth}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
)

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// TransportError - структурированная ошибка транспорта движка (статус + причина),
// чтобы классифицировать один раз, без разбора текста.
type TransportError struct {
	Engine string
	Status int    // HTTP-статус, 0 если неизвестен
	Reason string // API_KEY_INVALID, rate_limit_exceeded, RESOURCE_EXHAUSTED ...
	Err    error
}

func (e *TransportError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %d (%s): %v", e.Engine, e.Status, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %d: %v", e.Engine, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
