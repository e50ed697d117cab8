package tgui

import (
	"strings"
)

// Prefix namespaces every callback the bot emits.
const Prefix = "med"

// MaxDataLen is Telegram's callback_data limit in bytes.
const MaxDataLen = 64

// Data formats callback data as "med:action" or "med:action:payload".
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return Prefix + ":" + action
	}
	return Prefix + ":" + action + ":" + payload
}

// Callback is parsed callback data.
type Callback struct {
	Action  string
	Payload string
}

// ParseData splits callback data produced by Data. It reports false for
// data from another namespace or without an action.
func ParseData(data string) (Callback, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(data), Prefix+":")
	if !ok {
		return Callback{}, false
	}
	action, payload, _ := strings.Cut(rest, ":")
	if action == "" {
		return Callback{}, false
	}
	return Callback{Action: action, Payload: payload}, true
}
