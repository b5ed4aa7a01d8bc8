package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// ErrEmptyMessage is returned for content that is empty after trimming.
// Senders treat it as a silent no-op.
var ErrEmptyMessage = errors.New("chat: message text is empty")

// ValidateMessage trims text and checks that it meets content requirements.
// It returns the trimmed text.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return "", fmt.Errorf("chat: message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("chat: message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return "", fmt.Errorf("chat: message exceeds %d character limit", MaxTextChars)
	}
	return text, nil
}
