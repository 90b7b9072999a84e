package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "scope:action:payload".
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// CheckedData is Data with Telegram's callback_data size limit enforced.
func CheckedData(scope, action, payload string) (string, error) {
	d := Data(scope, action, payload)
	if len(d) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(d))
	}
	return d, nil
}

// SplitData is the inverse of Data. ok is false when scope or action is missing.
func SplitData(data string) (scope, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
