package encode

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ai-detector/api/internal/detect/types"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWEBP = "image/webp"
)

var allowed = map[string]bool{
	MIMEPNG:  true,
	MIMEJPEG: true,
	MIMEWEBP: true,
}

// Allowed reports whether mime is one of the accepted image types.
func Allowed(mime string) bool { return allowed[normalizeMIME(mime)] }

// ImageSource - исходные байты картинки + её тип. После создания не меняется.
type ImageSource struct {
	data     []byte
	mimeType string
}

func (s ImageSource) MIMEType() string { return s.mimeType }
func (s ImageSource) Size() int        { return len(s.data) }
func (s ImageSource) Empty() bool      { return len(s.data) == 0 }

// EncodedPayload - base64 картинки и тип, вынутый из заголовка data URL.
type EncodedPayload struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// NewImageSource copies data and resolves its content type: the declared type wins,
// otherwise the type is sniffed from the bytes. Only PNG, JPEG and WEBP are accepted.
func NewImageSource(data []byte, declaredType string) (ImageSource, error) {
	mime := normalizeMIME(declaredType)
	if mime == "" && len(data) > 0 {
		mime = normalizeMIME(mimetype.Detect(data).String())
	}
	if !allowed[mime] {
		return ImageSource{}, types.NewError(types.KindUnsupportedType, "content type "+quoteOrEmpty(mime), nil)
	}
	return ImageSource{data: bytes.Clone(data), mimeType: mime}, nil
}

// Read drains r into an ImageSource.
func Read(r io.Reader, declaredType string) (ImageSource, error) {
	if r == nil {
		return ImageSource{}, types.NewError(types.KindRead, "nil reader", nil)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return ImageSource{}, types.NewError(types.KindRead, "read image", err)
	}
	return NewImageSource(b, declaredType)
}

// Encode превращает картинку в data URL и сразу разбирает его обратно на (data, mime).
func Encode(src ImageSource) (EncodedPayload, error) {
	if src.Empty() {
		return EncodedPayload{}, types.NewError(types.KindMalformedEncoding, "empty image", nil)
	}
	return ParseDataURL(MakeDataURL(src.mimeType, base64.StdEncoding.EncodeToString(src.data)))
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// ParseDataURL splits "<header>,<data>" and extracts the content type from
// "data:<mime>;base64". A missing half or an empty content type is malformed.
func ParseDataURL(s string) (EncodedPayload, error) {
	header, data, ok := strings.Cut(s, ",")
	if !ok || header == "" || data == "" {
		return EncodedPayload{}, types.NewError(types.KindMalformedEncoding, "expected <header>,<data>", nil)
	}
	_, meta, ok := strings.Cut(header, ":")
	if !ok {
		return EncodedPayload{}, types.NewError(types.KindMalformedEncoding, "header has no scheme", nil)
	}
	mime, _, _ := strings.Cut(meta, ";")
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return EncodedPayload{}, types.NewError(types.KindMalformedEncoding, "empty content type", nil)
	}
	return EncodedPayload{Data: data, MIMEType: mime}, nil
}

// Decode восстанавливает исходные байты. Стандартная база64, затем URL-safe.
func Decode(p EncodedPayload) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(p.Data); err == nil {
		return b, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(p.Data); err2 == nil {
		return b2, nil
	} else {
		return nil, types.NewError(types.KindMalformedEncoding, "bad base64", err)
	}
}

// FromBase64 принимает «голый» base64 или data URL (как присылают HTTP-клиенты).
// Тип: явный, затем из data URL, иначе детектим по байтам.
func FromBase64(s, explicitType string) (ImageSource, error) {
	s = strings.TrimSpace(s)
	var hint string
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		p, err := ParseDataURL(s)
		if err != nil {
			return ImageSource{}, err
		}
		hint, s = p.MIMEType, p.Data
	}
	if s == "" {
		return ImageSource{}, types.NewError(types.KindMalformedEncoding, "empty image", nil)
	}
	b, err := Decode(EncodedPayload{Data: s})
	if err != nil {
		return ImageSource{}, err
	}
	mime := strings.TrimSpace(explicitType)
	if mime == "" {
		mime = hint
	}
	return NewImageSource(b, mime)
}

func normalizeMIME(s string) string {
	s, _, _ = strings.Cut(s, ";")
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "image/jpg", "image/pjpeg":
		return MIMEJPEG
	case "application/octet-stream":
		// тип не знает и отправитель - определим по байтам
		return ""
	}
	return s
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return `"` + s + `"`
}
