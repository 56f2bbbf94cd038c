package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type stubAnalyzer struct {
	mu    sync.Mutex
	calls int
	keys  []string
	res   types.AnalysisResult
	err   error
	// если block != nil, Analyze ждёт его закрытия или отмены ctx
	block   chan struct{}
	started chan struct{}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, p encode.EncodedPayload, key string) (types.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.keys = append(s.keys, key)
	block, started := s.block, s.started
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.AnalysisResult{}, types.NewError(types.KindServiceUnavailable, "cancelled", ctx.Err())
		}
	}
	return s.res, s.err
}

func newController(t *testing.T, a Analyzer) (*Controller, credential.Provider) {
	t.Helper()
	p := credential.NewMemory().For("s1")
	require.NoError(t, p.Set(context.Background(), "key-1"))
	return NewController("s1", a, p), p
}

func verdict() types.AnalysisResult {
	return types.AnalysisResult{IsAIGenerated: true, ConfidenceScore: 92, Reasoning: "smooth skin", TelltaleSigns: []string{"a", "b", "c"}}
}

func TestAnalyzeSuccess(t *testing.T) {
	a := &stubAnalyzer{res: verdict()}
	c, _ := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, ""))

	res, err := c.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, verdict(), res)
	assert.Equal(t, []string{"key-1"}, a.keys)

	v := c.View()
	assert.Equal(t, StateSucceeded, v.State)
	assert.Equal(t, encode.MIMEJPEG, v.MIMEType)
	require.NotNil(t, v.Result)
	assert.Nil(t, v.Error)
	assert.Equal(t, 92, v.Result.ConfidenceScore)
}

func TestAnalyzeRateLimitKeepsCredential(t *testing.T) {
	a := &stubAnalyzer{err: types.NewError(types.KindRateLimit, "429", nil)}
	c, p := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, encode.MIMEJPEG))

	_, err := c.Analyze(context.Background())
	require.ErrorIs(t, err, types.ErrRateLimit)

	v := c.View()
	assert.Equal(t, StateFailed, v.State)
	assert.Nil(t, v.Result)
	require.NotNil(t, v.Error)
	assert.Equal(t, "API rate limit exceeded. Please try again later.", v.Error.Message)
	assert.False(t, v.NeedsCredential)

	key, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-1", key)
}

func TestAnalyzeAuthClearsCredential(t *testing.T) {
	a := &stubAnalyzer{err: types.NewError(types.KindAuth, "API_KEY_INVALID", nil)}
	c, p := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, ""))

	_, err := c.Analyze(context.Background())
	require.ErrorIs(t, err, types.ErrAuth)

	key, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.True(t, c.View().NeedsCredential)
	assert.False(t, c.HasCredential(context.Background()))

	// без ключа повторная попытка не доходит до анализатора
	_, err = c.Analyze(context.Background())
	require.ErrorIs(t, err, types.ErrAuth)
	assert.Equal(t, 1, a.calls)

	require.NoError(t, c.SetCredential(context.Background(), "key-2"))
	assert.False(t, c.View().NeedsCredential)
}

func TestAnalyzeWithoutImage(t *testing.T) {
	c, _ := newController(t, &stubAnalyzer{})
	_, err := c.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, StateIdle, c.View().State)
}

func TestSelectImageRejectsUnsupported(t *testing.T) {
	c, _ := newController(t, &stubAnalyzer{})
	err := c.SelectImage([]byte("GIF89a........"), "")
	assert.ErrorIs(t, err, types.ErrUnsupportedType)
	assert.False(t, c.View().HasImage)
}

func TestClearIsIdempotent(t *testing.T) {
	c, _ := newController(t, &stubAnalyzer{res: verdict()})
	require.NoError(t, c.SelectImage(jpeg, ""))
	_, err := c.Analyze(context.Background())
	require.NoError(t, err)

	c.Clear()
	first := c.View()
	c.Clear()
	second := c.View()

	assert.Equal(t, StateIdle, first.State)
	assert.False(t, first.HasImage)
	assert.Nil(t, first.Result)
	assert.Nil(t, first.Error)
	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
}

func TestNewAttemptSupersedesRunning(t *testing.T) {
	a := &stubAnalyzer{res: verdict(), block: make(chan struct{}), started: make(chan struct{}, 2)}
	c, _ := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, ""))

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background())
		firstErr <- err
	}()
	<-a.started

	// второй запуск отменяет первый
	secondErr := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background())
		secondErr <- err
	}()
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	<-a.started
	close(a.block)
	require.NoError(t, <-secondErr)
	assert.Equal(t, StateSucceeded, c.View().State)
}

func TestClearDropsRunningOutcome(t *testing.T) {
	a := &stubAnalyzer{res: verdict(), block: make(chan struct{}), started: make(chan struct{}, 1)}
	c, _ := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, ""))

	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background())
		done <- err
	}()
	<-a.started
	c.Clear()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	v := c.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Nil(t, v.Result)
	assert.Nil(t, v.Error)
}

func TestViewCopiesSigns(t *testing.T) {
	c, _ := newController(t, &stubAnalyzer{res: verdict()})
	require.NoError(t, c.SelectImage(jpeg, ""))
	_, err := c.Analyze(context.Background())
	require.NoError(t, err)

	v := c.View()
	v.Result.TelltaleSigns[0] = "changed"
	assert.Equal(t, "a", c.View().Result.TelltaleSigns[0])
}

func TestUnknownErrorIsWrapped(t *testing.T) {
	c, _ := newController(t, &stubAnalyzer{err: errors.New("boom")})
	require.NoError(t, c.SelectImage(jpeg, ""))
	_, err := c.Analyze(context.Background())

	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.KindUnknown, terr.Kind)
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	store := credential.NewMemory()
	m := NewManager(&stubAnalyzer{res: verdict()}, store)

	c := m.New()
	require.NotEmpty(t, c.ID)
	got, ok := m.Get(c.ID)
	require.True(t, ok)
	assert.Same(t, c, got)

	require.NoError(t, c.SetCredential(ctx, "key"))
	assert.Same(t, c, m.GetOrCreate(c.ID))

	m.End(ctx, c.ID)
	_, ok = m.Get(c.ID)
	assert.False(t, ok)
	key, err := store.For(c.ID).Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestManagerSweep(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&stubAnalyzer{}, credential.NewMemory())
	old := m.GetOrCreate("old")
	fresh := m.GetOrCreate("fresh")

	old.mu.Lock()
	old.updatedAt = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()

	assert.Equal(t, 1, m.Sweep(ctx, time.Hour))
	_, ok := m.Get("old")
	assert.False(t, ok)
	got, ok := m.Get("fresh")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestLateAuthFailureKeepsReplacedKey(t *testing.T) {
	a := &stubAnalyzer{
		err:     types.NewError(types.KindAuth, "API_KEY_INVALID", nil),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c, p := newController(t, a)
	require.NoError(t, c.SelectImage(jpeg, ""))

	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background())
		done <- err
	}()
	<-a.started

	require.NoError(t, c.SetCredential(context.Background(), "key-2"))
	close(a.block)
	require.ErrorIs(t, <-done, types.ErrAuth)

	key, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-2", key)
	assert.False(t, c.View().NeedsCredential)
	assert.Equal(t, []string{"key-1"}, a.keys)
}

type namedAnalyzer struct {
	stubAnalyzer
	name string
}

func (n *namedAnalyzer) EngineName() string { return n.name }

func TestServerKeyFollowsEngine(t *testing.T) {
	ctx := context.Background()
	store := credential.Static{Keys: map[string]string{"gemini": "g-key", "gpt": "sk-openai"}, Default: "gemini"}
	gpt := &namedAnalyzer{name: "gpt", stubAnalyzer: stubAnalyzer{res: verdict()}}
	c := NewController("s1", &namedAnalyzer{name: "gemini", stubAnalyzer: stubAnalyzer{res: verdict()}}, store.For("s1"))
	c.SetAnalyzer(gpt)
	require.NoError(t, c.SelectImage(jpeg, ""))
	assert.Equal(t, "gpt", c.EngineName())
	assert.True(t, c.HasCredential(ctx))

	_, err := c.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-openai"}, gpt.keys)
}

func TestServerKeyNeverAsksForKey(t *testing.T) {
	ctx := context.Background()
	store := credential.Static{Keys: map[string]string{"gemini": "g-key"}, Default: "gemini"}
	a := &namedAnalyzer{name: "gemini", stubAnalyzer: stubAnalyzer{err: types.NewError(types.KindAuth, "API_KEY_INVALID", nil)}}
	c := NewController("s1", a, store.For("s1"))
	require.NoError(t, c.SelectImage(jpeg, ""))

	_, err := c.Analyze(ctx)
	require.ErrorIs(t, err, types.ErrAuth)
	assert.False(t, c.View().NeedsCredential)
	assert.False(t, c.UserKey())
	assert.True(t, c.HasCredential(ctx))

	assert.ErrorIs(t, c.SetCredential(ctx, "user-key"), credential.ErrReadOnly)
	assert.ErrorIs(t, c.ClearCredential(ctx), credential.ErrReadOnly)
	assert.False(t, c.View().NeedsCredential)
}

func TestManagerOnEnd(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&stubAnalyzer{}, credential.NewMemory())
	var ended []string
	m.OnEnd(func(id string) { ended = append(ended, id) })

	m.GetOrCreate("tg:1")
	m.End(ctx, "tg:1")
	m.End(ctx, "tg:unknown")
	assert.Equal(t, []string{"tg:1"}, ended)
}
