package handle

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ai-detector/api/internal/encode"
	"ai-detector/api/internal/session"
)

type CreateSessionRequest struct {
	LLMName string `json:"llm_name"`
}

type CreateSessionResponse struct {
	SessionID string       `json:"session_id"`
	View      session.View `json:"session"`
}

type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

type ImageRequest struct {
	ImageB64 string `json:"image_b64"`
	MIME     string `json:"mime"`
}

var errSessionNotFound = errors.New("session not found")

func (h *Handle) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	// тело необязательно: пустое - движок по умолчанию
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json: " + err.Error(), Kind: "bad_request"})
		return
	}
	a, err := h.pool.Get(req.LLMName)
	if err != nil {
		writeError(w, err)
		return
	}
	c := h.sessions.New()
	c.SetAnalyzer(a)
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: c.ID, View: h.view(r, c)})
}

func (h *Handle) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, c))
}

func (h *Handle) DeleteSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.sessions.End(r.Context(), c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) PutCredential(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json: " + err.Error(), Kind: "bad_request"})
		return
	}
	if err := c.SetCredential(r.Context(), req.APIKey); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, c))
}

func (h *Handle) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := c.ClearCredential(r.Context()); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, c))
}

// PutImage принимает JSON {image_b64, mime} или multipart с полем "image".
func (h *Handle) PutImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	src, err := h.readImage(w, r)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	c.SetImage(src)
	writeJSON(w, http.StatusOK, h.view(r, c))
}

func (h *Handle) DeleteImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	c.Clear()
	writeJSON(w, http.StatusOK, h.view(r, c))
}

func (h *Handle) AnalyzeSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	if _, err := c.Analyze(ctx); err != nil {
		h.logFailure(r, err)
		code, body := mapError(err)
		writeJSON(w, code, struct {
			errorBody
			Session session.View `json:"session"`
		}{body, h.view(r, c)})
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, c))
}

func (h *Handle) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errSessionNotFound.Error(), Kind: "not_found"})
		return nil, false
	}
	return c, true
}

// view дополняет снимок сессии флагом «нужен ключ», если ключа в хранилище нет.
func (h *Handle) view(r *http.Request, c *session.Controller) session.View {
	v := c.View()
	if c.UserKey() && !v.NeedsCredential && !c.HasCredential(r.Context()) {
		v.NeedsCredential = true
	}
	return v
}

func (h *Handle) readImage(w http.ResponseWriter, r *http.Request) (encode.ImageSource, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxImageBytes+1<<20)
		file, hdr, err := r.FormFile("image")
		if err != nil {
			return encode.ImageSource{}, readError(err)
		}
		defer file.Close()
		return encode.Read(file, hdr.Header.Get("Content-Type"))
	}

	// base64 раздувает размер на треть
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxImageBytes*4/3+4096)
	var req ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return encode.ImageSource{}, readError(err)
	}
	return encode.FromBase64(req.ImageB64, req.MIME)
}
