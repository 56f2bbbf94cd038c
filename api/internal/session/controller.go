package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apex/log"

	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/encode"
)

// State of the current analysis attempt.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var (
	ErrNoImage = errors.New("no image selected")
	// ErrSuperseded is returned to a caller whose attempt was replaced by a newer
	// attempt, a new image or Clear; its outcome is discarded.
	ErrSuperseded = errors.New("analysis superseded by a newer request")
)

// Analyzer - то, что контроллеру нужно от анализатора.
type Analyzer interface {
	Analyze(ctx context.Context, p encode.EncodedPayload, credential string) (types.AnalysisResult, error)
}

type engineNamer interface {
	EngineName() string
}

func engineOf(a Analyzer) string {
	if n, ok := a.(engineNamer); ok {
		return n.EngineName()
	}
	return ""
}

// ErrorView - ошибка в том виде, в каком её показываем пользователю.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// View is a snapshot of the controller. At most one of Result and Error is set.
type View struct {
	State           State                 `json:"state"`
	HasImage        bool                  `json:"has_image"`
	MIMEType        string                `json:"mime_type,omitempty"`
	ImageBytes      int                   `json:"image_bytes,omitempty"`
	Result          *types.AnalysisResult `json:"result,omitempty"`
	Error           *ErrorView            `json:"error,omitempty"`
	NeedsCredential bool                  `json:"needs_credential"`
	Engine          string                `json:"engine,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Controller owns the state of one single-page session: the selected image,
// the last outcome and the credential provider.
type Controller struct {
	ID       string
	analyzer Analyzer
	creds    credential.Provider
	credMu   sync.Mutex // сериализует изменения ключа

	mu        sync.Mutex
	image     *encode.ImageSource
	result    *types.AnalysisResult
	err       *types.Error
	state     State
	gen       uint64
	cancel    context.CancelFunc
	needsKey  bool
	updatedAt time.Time
}

func NewController(id string, a Analyzer, creds credential.Provider) *Controller {
	return &Controller{
		ID:        id,
		analyzer:  a,
		creds:     creds,
		state:     StateIdle,
		updatedAt: time.Now(),
	}
}

// SetAnalyzer switches the engine for the following attempts.
func (c *Controller) SetAnalyzer(a Analyzer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.analyzer = a
	if c.state == StateRequesting {
		c.state = StateIdle
	}
}

// SelectImage stores a new image and drops the previous outcome.
func (c *Controller) SelectImage(data []byte, declaredType string) error {
	src, err := encode.NewImageSource(data, declaredType)
	if err != nil {
		return err
	}
	c.SetImage(src)
	return nil
}

// SetImage - то же, что SelectImage, для уже разобранной картинки.
func (c *Controller) SetImage(src encode.ImageSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.image = &src
	c.result, c.err = nil, nil
	c.state = StateIdle
}

// Clear discards the image and the outcome. Calling it twice is the same as once.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.image = nil
	c.result, c.err = nil, nil
	c.state = StateIdle
}

// Analyze runs one attempt for the selected image. A newer attempt cancels this one.
func (c *Controller) Analyze(ctx context.Context) (types.AnalysisResult, error) {
	c.mu.Lock()
	if c.image == nil {
		c.mu.Unlock()
		return types.AnalysisResult{}, ErrNoImage
	}
	c.supersedeLocked()
	gen := c.gen
	actx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	src := *c.image
	an := c.analyzer
	c.result, c.err = nil, nil
	c.state = StateRequesting
	c.touchLocked()
	c.mu.Unlock()
	defer cancel()

	entry := log.WithFields(log.Fields{"session": c.ID, "attempt": gen})

	res, used, err := c.run(actx, an, src)

	var terr *types.Error
	if err != nil && !errors.As(err, &terr) {
		terr = types.NewError(types.KindUnknown, "", err)
	}

	if c.superseded(gen) {
		entry.Debug("attempt superseded, outcome dropped")
		return types.AnalysisResult{}, ErrSuperseded
	}
	dropped := false
	if terr != nil && terr.Kind == types.KindAuth && credential.UserSettable(c.creds) {
		// ключ невалиден (или его нет) - стираем, пусть пользователь введёт заново
		dropped = c.dropKey(ctx, used, entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		entry.Debug("attempt superseded, outcome dropped")
		return types.AnalysisResult{}, ErrSuperseded
	}
	if dropped {
		c.needsKey = true
	}
	c.cancel = nil
	c.touchLocked()
	if terr != nil {
		c.state = StateFailed
		c.err = terr
		entry.WithField("kind", terr.Kind.String()).Info("analysis failed")
		return types.AnalysisResult{}, terr
	}
	c.state = StateSucceeded
	c.result = &res
	return res, nil
}

// run returns the outcome together with the key the attempt used.
func (c *Controller) run(ctx context.Context, an Analyzer, src encode.ImageSource) (types.AnalysisResult, string, error) {
	key, err := credential.Lookup(ctx, c.creds, engineOf(an))
	if err != nil {
		return types.AnalysisResult{}, "", types.NewError(types.KindServiceUnavailable, "credential store", err)
	}
	if key == "" {
		return types.AnalysisResult{}, "", types.NewError(types.KindAuth, "no credential", nil)
	}
	p, err := encode.Encode(src)
	if err != nil {
		return types.AnalysisResult{}, key, err
	}
	res, err := an.Analyze(ctx, p, key)
	return res, key, err
}

func (c *Controller) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

// dropKey clears the stored key only if it is still the one that failed.
func (c *Controller) dropKey(ctx context.Context, used string, entry *log.Entry) bool {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	cur, err := c.creds.Get(ctx)
	if err != nil {
		entry.WithError(err).Warn("credential read failed")
		return false
	}
	if cur != used {
		return false
	}
	if cur != "" {
		if err := c.creds.Clear(ctx); err != nil {
			entry.WithError(err).Warn("credential clear failed")
			return false
		}
	}
	return true
}

// SetCredential stores a user-supplied key for this session.
func (c *Controller) SetCredential(ctx context.Context, secret string) error {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if err := c.creds.Set(ctx, secret); err != nil {
		return err
	}
	c.mu.Lock()
	c.needsKey = false
	c.touchLocked()
	c.mu.Unlock()
	return nil
}

func (c *Controller) ClearCredential(ctx context.Context) error {
	if !c.UserKey() {
		return credential.ErrReadOnly
	}
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if err := c.creds.Clear(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.needsKey = true
	c.mu.Unlock()
	return nil
}

// UserKey reports whether the key is entered by the user (false for server keys).
func (c *Controller) UserKey() bool { return credential.UserSettable(c.creds) }

// HasCredential reports whether a key is available for the next attempt.
func (c *Controller) HasCredential(ctx context.Context) bool {
	c.mu.Lock()
	an := c.analyzer
	c.mu.Unlock()
	k, err := credential.Lookup(ctx, c.creds, engineOf(an))
	return err == nil && k != ""
}

// EngineName - движок, которым пойдёт следующая попытка.
func (c *Controller) EngineName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return engineOf(c.analyzer)
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:           c.state,
		NeedsCredential: c.needsKey,
		Engine:          engineOf(c.analyzer),
		UpdatedAt:       c.updatedAt,
	}
	if c.image != nil {
		v.HasImage = true
		v.MIMEType = c.image.MIMEType()
		v.ImageBytes = c.image.Size()
	}
	switch {
	case c.err != nil:
		v.Error = &ErrorView{Kind: c.err.Kind.String(), Message: c.err.Kind.Message()}
	case c.result != nil:
		r := *c.result
		r.TelltaleSigns = append([]string(nil), r.TelltaleSigns...)
		v.Result = &r
	}
	return v
}

func (c *Controller) lastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// supersedeLocked отменяет текущую попытку: её результат больше никому не нужен.
func (c *Controller) supersedeLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.touchLocked()
}

func (c *Controller) touchLocked() { c.updatedAt = time.Now() }
