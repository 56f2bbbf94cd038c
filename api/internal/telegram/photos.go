package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
)

// acceptPhoto берёт самый крупный размер фото.
func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	ph := msg.Photo[len(msg.Photo)-1]
	r.acceptFile(ctx, msg.Chat.ID, ph.FileID, ph.FileSize, "")
}

func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if mt := strings.ToLower(doc.MimeType); mt != "" && !encode.Allowed(mt) {
		r.send(msg.Chat.ID, "⚠️ "+types.KindUnsupportedType.Message())
		return
	}
	r.acceptFile(ctx, msg.Chat.ID, doc.FileID, doc.FileSize, doc.MimeType)
}

func (r *Router) acceptFile(ctx context.Context, cid int64, fileID string, size int, mimeType string) {
	if r.MaxImageBytes > 0 && int64(size) > r.MaxImageBytes {
		r.send(cid, fmt.Sprintf("⚠️ The image is too large (max %d MB).", r.MaxImageBytes>>20))
		return
	}
	file, err := r.Bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		r.SendError(cid, types.NewError(types.KindRead, "get file", err))
		return
	}
	img, err := r.download(ctx, r.fileURL(file.FilePath))
	if err != nil {
		r.SendError(cid, types.NewError(types.KindRead, "download", err))
		return
	}
	if err := r.controller(cid).SelectImage(img, mimeType); err != nil {
		r.SendError(cid, err)
		return
	}
	r.runAnalyze(ctx, cid)
}

func (r *Router) fileURL(path string) string {
	endpoint := r.FileEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.FileEndpoint
	}
	return fmt.Sprintf(endpoint, r.Bot.Token, path)
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	body := io.Reader(resp.Body)
	if r.MaxImageBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxImageBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if r.MaxImageBytes > 0 && int64(len(b)) > r.MaxImageBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", r.MaxImageBytes)
	}
	return b, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
