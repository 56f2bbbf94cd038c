package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/session"
)

const (
	token   = "123:test"
	verdict = `{"is_ai_generated":true,"confidence_score":92,"reasoning":"waxy_skin","telltale_signs":["a","b","c"]}`
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0xFF, 0xD9}

type stubEngine struct {
	name string
	mu   sync.Mutex
	raw  string
	err  error
	keys []string
}

func (s *stubEngine) Name() string     { return s.name }
func (s *stubEngine) GetModel() string { return s.name + "-model" }
func (s *stubEngine) Analyze(_ context.Context, in types.AnalyzeRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, in.APIKey)
	return s.raw, s.err
}

// fakeAPI - минимальный Bot API: getMe, sendMessage, sendChatAction, deleteMessage, getFile и файлы.
type fakeAPI struct {
	mu      sync.Mutex
	texts   []string
	deleted []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/bot"+token+"/") {
		_, _ = w.Write(jpeg)
		return
	}
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	var result any = true
	switch method {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "detector", "username": "detector_bot"}
	case "sendMessage":
		f.mu.Lock()
		f.texts = append(f.texts, r.FormValue("text"))
		f.mu.Unlock()
		result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1, "type": "private"}}
	case "deleteMessage":
		f.mu.Lock()
		f.deleted = append(f.deleted, r.FormValue("message_id"))
		f.mu.Unlock()
	case "getFile":
		result = map[string]any{"file_id": r.FormValue("file_id"), "file_unique_id": "u1", "file_size": len(jpeg), "file_path": "photos/file_1.jpg"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fixture struct {
	r      *Router
	api    *fakeAPI
	gemini *stubEngine
	gpt    *stubEngine
	creds  credential.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, credential.NewMemory())
}

func newFixtureWith(t *testing.T, creds credential.Store) *fixture {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithClient(token, srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	g := &stubEngine{name: "gemini", raw: verdict}
	o := &stubEngine{name: "gpt", raw: verdict}
	pool := detect.NewPool(&detect.Engines{Gemini: g, OpenAI: o})
	def, err := pool.Get("")
	require.NoError(t, err)

	r := NewRouter(bot, session.NewManager(def, creds), pool)
	r.FileEndpoint = srv.URL + "/file/bot%s/%s"
	r.MaxImageBytes = 1 << 20

	return &fixture{
		r:      r,
		api:    api,
		gemini: g,
		gpt:    o,
		creds:  creds,
	}
}

func command(cid int64, text string) tgbotapi.Update {
	n := len(strings.Fields(text)[0])
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: cid},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func text(cid int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 8, Chat: &tgbotapi.Chat{ID: cid}, Text: s}}
}

func photo(cid int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9,
		Chat:      &tgbotapi.Chat{ID: cid},
		Photo:     []tgbotapi.PhotoSize{{FileID: "small", FileSize: 4}, {FileID: "big", FileSize: len(jpeg)}},
	}}
}

func TestPhotoAsksForKeyThenAnalyzes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1001

	f.r.HandleUpdate(ctx, photo(cid))
	assert.Equal(t, askKeyText, f.api.last())
	assert.Empty(t, f.gemini.keys)

	f.r.HandleUpdate(ctx, text(cid, "  user-key  "))
	assert.Equal(t, []string{"8"}, f.api.deleted)
	assert.Equal(t, []string{"user-key"}, f.gemini.keys)

	out := f.api.last()
	assert.Contains(t, out, "Likely AI-Generated")
	assert.Contains(t, out, "92%")
	assert.Contains(t, out, "waxy\\_skin")
}

func TestKeyCommandThenPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1002

	f.r.HandleUpdate(ctx, command(cid, "/key sk-abc"))
	assert.Equal(t, []string{"7"}, f.api.deleted)
	assert.Contains(t, f.api.last(), "Key saved")

	f.r.HandleUpdate(ctx, photo(cid))
	assert.Equal(t, []string{"sk-abc"}, f.gemini.keys)
	assert.Contains(t, f.api.last(), "Likely AI-Generated")

	f.r.HandleUpdate(ctx, command(cid, "/again"))
	assert.Len(t, f.gemini.keys, 2)
}

func TestAuthErrorClearsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1003
	f.gemini.err = &types.TransportError{Status: http.StatusUnauthorized, Reason: "API_KEY_INVALID"}

	f.r.HandleUpdate(ctx, command(cid, "/key bad"))
	f.r.HandleUpdate(ctx, photo(cid))

	assert.Contains(t, f.api.last(), types.KindAuth.Message())
	key, err := f.creds.For(sessionID(cid)).Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Equal(t, modeAwaitKey, f.r.getMode(cid))
}

func TestRateLimitKeepsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1004
	f.gemini.err = &types.TransportError{Status: http.StatusTooManyRequests}

	f.r.HandleUpdate(ctx, command(cid, "/key good"))
	f.r.HandleUpdate(ctx, photo(cid))

	assert.Contains(t, f.api.last(), "API rate limit exceeded. Please try again later.")
	key, err := f.creds.For(sessionID(cid)).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "good", key)
}

func TestEngineSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1005

	f.r.HandleUpdate(ctx, command(cid, "/engine"))
	assert.Contains(t, f.api.last(), "Current engine: gemini")

	f.r.HandleUpdate(ctx, command(cid, "/engine llama"))
	assert.Contains(t, f.api.last(), "Unknown engine")

	f.r.HandleUpdate(ctx, command(cid, "/engine gpt"))
	assert.Contains(t, f.api.last(), "Engine: gpt (gpt-model)")

	f.r.HandleUpdate(ctx, command(cid, "/key k"))
	f.r.HandleUpdate(ctx, photo(cid))
	assert.Empty(t, f.gemini.keys)
	assert.Equal(t, []string{"k"}, f.gpt.keys)
}

func TestEngineChoiceEndsWithSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1009

	f.r.HandleUpdate(ctx, command(cid, "/engine gpt"))
	f.r.HandleUpdate(ctx, command(cid, "/key"))
	require.Equal(t, modeAwaitKey, f.r.getMode(cid))

	require.Equal(t, 1, f.r.Sessions.Sweep(ctx, -time.Minute))
	assert.Empty(t, f.r.getMode(cid))

	f.r.HandleUpdate(ctx, command(cid, "/engine"))
	assert.Contains(t, f.api.last(), "Current engine: gemini")

	f.r.HandleUpdate(ctx, command(cid, "/key k"))
	f.r.HandleUpdate(ctx, photo(cid))
	assert.Equal(t, []string{"k"}, f.gemini.keys)
	assert.Empty(t, f.gpt.keys)
}

func TestServerKeys(t *testing.T) {
	f := newFixtureWith(t, credential.Static{
		Keys:    map[string]string{"gemini": "g-server", "gpt": "sk-server"},
		Default: "gemini",
	})
	ctx := context.Background()
	const cid = 1010

	f.r.HandleUpdate(ctx, photo(cid))
	assert.Equal(t, []string{"g-server"}, f.gemini.keys)
	assert.Contains(t, f.api.last(), "Likely AI-Generated")

	f.r.HandleUpdate(ctx, command(cid, "/engine gpt"))
	f.r.HandleUpdate(ctx, command(cid, "/again"))
	assert.Equal(t, []string{"sk-server"}, f.gpt.keys)

	f.r.HandleUpdate(ctx, command(cid, "/key user-key"))
	assert.Equal(t, serverKeyText, f.api.last())
	assert.Empty(t, f.r.getMode(cid))

	f.r.HandleUpdate(ctx, command(cid, "/forget"))
	assert.Equal(t, serverKeyText, f.api.last())

	f.gpt.err = &types.TransportError{Status: http.StatusUnauthorized, Reason: "API_KEY_INVALID"}
	f.r.HandleUpdate(ctx, command(cid, "/again"))
	assert.Equal(t, "⚠️ "+types.KindAuth.Message(), f.api.last())
	assert.Empty(t, f.r.getMode(cid))
	assert.False(t, f.r.controller(cid).View().NeedsCredential)
}

func TestForgetAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const cid = 1006

	f.r.HandleUpdate(ctx, command(cid, "/key k"))
	f.r.HandleUpdate(ctx, command(cid, "/forget"))
	assert.Contains(t, f.api.last(), "Key forgotten")
	key, _ := f.creds.For(sessionID(cid)).Get(ctx)
	assert.Empty(t, key)

	f.r.HandleUpdate(ctx, photo(cid))
	assert.True(t, f.r.controller(cid).View().HasImage)

	f.r.HandleUpdate(ctx, command(cid, "/clear"))
	assert.False(t, f.r.controller(cid).View().HasImage)
	assert.Empty(t, f.r.getMode(cid))
}

func TestUnsupportedDocument(t *testing.T) {
	f := newFixture(t)
	const cid = 1007
	f.r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Chat:      &tgbotapi.Chat{ID: cid},
		Document:  &tgbotapi.Document{FileID: "d1", MimeType: "image/gif", FileSize: 100},
	}})
	assert.Contains(t, f.api.last(), types.KindUnsupportedType.Message())
}

func TestTooLargePhoto(t *testing.T) {
	f := newFixture(t)
	const cid = 1008
	f.r.MaxImageBytes = 8
	f.r.HandleUpdate(context.Background(), photo(cid))
	assert.Contains(t, f.api.last(), "too large")
}

func TestFormatVerdict(t *testing.T) {
	out := formatVerdict(types.AnalysisResult{
		IsAIGenerated:   false,
		ConfidenceScore: 71,
		Reasoning:       "Natural *sensor* noise.",
		TelltaleSigns:   []string{"noise", "lens_flare", "shadows"},
	})
	assert.True(t, strings.HasPrefix(out, "📷 *Likely Human-Made*"))
	assert.Contains(t, out, "▰▰▰▰▰▰▰▱▱▱ 71%")
	assert.Contains(t, out, "Natural \\*sensor\\* noise.")
	assert.Contains(t, out, "• lens\\_flare")
}

func TestMeterBounds(t *testing.T) {
	assert.Equal(t, "▱▱▱▱▱▱▱▱▱▱", meter(0))
	assert.Equal(t, "▰▰▰▰▰▰▰▰▰▰", meter(100))
	assert.Equal(t, "▰▰▰▰▰▱▱▱▱▱", meter(50))
}
