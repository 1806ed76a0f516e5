package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

type callbackAction string

const (
	actionSelectReason callbackAction = "late_reason"
	actionConfirm      callbackAction = "confirm_late"
	actionCancel       callbackAction = "cancel_late"
	actionEditReason   callbackAction = "edit_reason"
)

// lateCallback is a decoded inline button press on a late report message.
type lateCallback struct {
	Action   callbackAction
	ReportID int64
	Preset   string // Only for actionSelectReason
}

// unique encodes the callback as a telebot button identifier.
func (cb lateCallback) unique() string {
	if cb.Action == actionSelectReason {
		return fmt.Sprintf("%s_%d_%s", cb.Action, cb.ReportID, cb.Preset)
	}
	return fmt.Sprintf("%s_%d", cb.Action, cb.ReportID)
}

// parseLateCallback decodes raw callback data. Telebot prefixes data of
// Data buttons with \f and may append "|payload"; both are ignored.
func parseLateCallback(data string) (lateCallback, bool) {
	data = strings.TrimPrefix(data, "\f")
	if i := strings.IndexByte(data, '|'); i >= 0 {
		data = data[:i]
	}

	for _, action := range []callbackAction{actionSelectReason, actionConfirm, actionCancel, actionEditReason} {
		rest, ok := strings.CutPrefix(data, string(action)+"_")
		if !ok {
			continue
		}
		cb := lateCallback{Action: action}
		idPart := rest
		if action == actionSelectReason {
			var preset string
			idPart, preset, ok = strings.Cut(rest, "_")
			if !ok || preset == "" {
				return lateCallback{}, false
			}
			cb.Preset = preset
		}
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil || id <= 0 {
			return lateCallback{}, false
		}
		cb.ReportID = id
		return cb, true
	}
	return lateCallback{}, false
}
