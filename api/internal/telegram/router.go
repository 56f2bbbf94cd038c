package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-detector/api/internal/detect"
	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/session"
)

type Router struct {
	Bot      *tgbotapi.BotAPI
	Sessions *session.Manager
	Pool     *detect.Pool

	// FileEndpoint - шаблон ссылки на файл (token, file_path); пусто - tgbotapi.FileEndpoint.
	FileEndpoint  string
	MaxImageBytes int64
	Timeout       time.Duration

	modes sync.Map // chatID -> "", "await_key"
}

// NewRouter builds a router and ties per-chat state to the session lifetime.
func NewRouter(bot *tgbotapi.BotAPI, sessions *session.Manager, pool *detect.Pool) *Router {
	r := &Router{Bot: bot, Sessions: sessions, Pool: pool}
	sessions.OnEnd(r.forgetSession)
	return r
}

// HandleUpdate обрабатывает одно обновление. Разные чаты можно обрабатывать параллельно.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(ctx, msg)
		return
	}
	switch {
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	case r.getMode(cid) == modeAwaitKey && strings.TrimSpace(msg.Text) != "":
		r.acceptKey(ctx, msg, msg.Text)
	case msg.Text != "":
		r.send(cid, helpText)
	}
}

func (r *Router) controller(cid int64) *session.Controller {
	return r.Sessions.GetOrCreate(sessionID(cid))
}

func sessionID(cid int64) string { return "tg:" + strconv.FormatInt(cid, 10) }

// runAnalyze запускает анализ выбранной картинки и отправляет вердикт или ошибку.
func (r *Router) runAnalyze(ctx context.Context, cid int64) {
	c := r.controller(cid)
	if !c.HasCredential(ctx) {
		if !c.UserKey() {
			r.send(cid, "⚠️ "+types.KindAuth.Message())
			return
		}
		r.setMode(cid, modeAwaitKey)
		r.send(cid, askKeyText)
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))
	res, err := c.Analyze(actx)
	switch {
	case err == nil:
		r.sendMarkdown(cid, formatVerdict(res))
	case errors.Is(err, session.ErrSuperseded):
		// результат устарел: пришла новая картинка или /clear
	case errors.Is(err, session.ErrNoImage):
		r.send(cid, "Send a photo first.")
	case errors.Is(err, types.ErrAuth) && c.UserKey():
		r.setMode(cid, modeAwaitKey)
		r.send(cid, types.KindAuth.Message()+"\n\n"+askKeyText)
	default:
		r.SendError(cid, err)
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("telegram send failed")
	}
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.Bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("telegram send failed")
	}
}

// SendError показывает пользователю текст из таксономии, подробности - только в лог.
func (r *Router) SendError(chatID int64, err error) {
	log.WithError(err).WithField("chat", chatID).Info("analysis error")
	r.send(chatID, "⚠️ "+types.KindOf(err).Message())
}
