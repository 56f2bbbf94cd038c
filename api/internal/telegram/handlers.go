package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-detector/api/internal/credential"
	"ai-detector/api/internal/detect"
)

const (
	helpText = "Send me a photo (or an image file: PNG, JPEG, WEBP) and I will estimate whether it was AI-generated.\n\n" +
		"Commands:\n" +
		"/key <api key> - set your API key\n" +
		"/forget - forget the stored key\n" +
		"/clear - discard the current image and result\n" +
		"/again - analyze the current image again\n" +
		"/engine gemini|gpt - choose the model provider"
	askKeyText    = "Please send your API key (or use /key <api key>). The message with the key will be deleted."
	serverKeyText = "This bot uses its own API key, there is nothing to set."
)

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "key":
		args := strings.TrimSpace(msg.CommandArguments())
		if !r.controller(cid).UserKey() {
			r.deleteMessage(msg)
			r.send(cid, serverKeyText)
			return
		}
		if args == "" {
			r.setMode(cid, modeAwaitKey)
			r.send(cid, askKeyText)
			return
		}
		r.acceptKey(ctx, msg, args)
	case "forget":
		r.clearMode(cid)
		if err := r.controller(cid).ClearCredential(ctx); err != nil {
			if errors.Is(err, credential.ErrReadOnly) {
				r.send(cid, serverKeyText)
				return
			}
			log.WithError(err).WithField("chat", cid).Warn("credential clear failed")
			r.send(cid, "Could not forget the key, try again later.")
			return
		}
		r.send(cid, "🗑 Key forgotten.")
	case "clear":
		r.clearMode(cid)
		r.controller(cid).Clear()
		r.send(cid, "Cleared. Send a new photo.")
	case "again":
		r.runAnalyze(ctx, cid)
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	default:
		r.send(cid, "Unknown command.\n\n"+helpText)
	}
}

// acceptKey сохраняет ключ и удаляет сообщение, где он был виден.
func (r *Router) acceptKey(ctx context.Context, msg *tgbotapi.Message, key string) {
	cid := msg.Chat.ID
	r.deleteMessage(msg)
	c := r.controller(cid)
	if err := c.SetCredential(ctx, key); err != nil {
		switch {
		case errors.Is(err, credential.ErrEmpty):
			r.send(cid, askKeyText)
			return
		case errors.Is(err, credential.ErrReadOnly):
			r.clearMode(cid)
			r.send(cid, serverKeyText)
			return
		}
		log.WithError(err).WithField("chat", cid).Warn("credential set failed")
		r.send(cid, "Could not store the key, try again later.")
		return
	}
	r.clearMode(cid)
	r.send(cid, "🔑 Key saved.")

	// картинка уже ждёт - анализируем сразу
	if c.View().HasImage {
		r.runAnalyze(ctx, cid)
	}
}

// handleEngineCommand: /engine - показать текущий, /engine gemini|gpt - переключить.
func (r *Router) handleEngineCommand(cid int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	if name == "" {
		r.send(cid, "Current engine: "+r.engineName(cid)+"\nUsage: /engine gemini|gpt")
		return
	}
	a, err := r.Pool.Get(name)
	if err != nil {
		if errors.Is(err, detect.ErrUnknownEngine) {
			r.send(cid, "Unknown engine. Available: gemini | gpt")
			return
		}
		r.send(cid, "❌ "+err.Error())
		return
	}
	r.controller(cid).SetAnalyzer(a)
	r.send(cid, "✅ Engine: "+a.Engine().Name()+" ("+a.Engine().GetModel()+").")
}

// engineName - движок сессии чата; после истечения сессии это снова движок по умолчанию.
func (r *Router) engineName(cid int64) string {
	if name := r.controller(cid).EngineName(); name != "" {
		return name
	}
	return "none"
}

func (r *Router) deleteMessage(msg *tgbotapi.Message) {
	if _, err := r.Bot.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		log.WithError(err).WithField("chat", msg.Chat.ID).Debug("delete key message failed")
	}
}
