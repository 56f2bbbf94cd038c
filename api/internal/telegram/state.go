package telegram

import (
	"strconv"
	"strings"
)

const modeAwaitKey = "await_key"

func (r *Router) setMode(chatID int64, mode string) { r.modes.Store(chatID, mode) }
func (r *Router) getMode(chatID int64) string {
	if v, ok := r.modes.Load(chatID); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return ""
}
func (r *Router) clearMode(chatID int64) { r.modes.Delete(chatID) }

// forgetSession - режим чата живёт не дольше его сессии.
func (r *Router) forgetSession(id string) {
	raw, ok := strings.CutPrefix(id, "tg:")
	if !ok {
		return
	}
	if cid, err := strconv.ParseInt(raw, 10, 64); err == nil {
		r.clearMode(cid)
	}
}
