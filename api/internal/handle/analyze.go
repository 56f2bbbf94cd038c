package handle

import (
	"encoding/json"
	"net/http"
	"strings"

	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
)

type AnalyzeRequest struct {
	LLMName  string `json:"llm_name"`
	ImageB64 string `json:"image_b64"`
	MIME     string `json:"mime"`
}

// Analyze - разовый анализ без сессии. Ключ: X-API-Key, иначе серверный.
func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxImageBytes*4/3+4096)
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, readError(err))
		return
	}
	a, err := h.pool.Get(req.LLMName)
	if err != nil {
		writeError(w, err)
		return
	}
	src, err := encode.FromBase64(req.ImageB64, req.MIME)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	p, err := encode.Encode(src)
	if err != nil {
		writeError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if key == "" && h.serverKey != nil {
		key = h.serverKey(a.Engine().Name())
	}

	ctx, cancel := h.withDeadline(r)
	defer cancel()

	res, err := a.Analyze(ctx, p, key)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readError(err error) error {
	return types.NewError(types.KindRead, "read request body", err)
}
