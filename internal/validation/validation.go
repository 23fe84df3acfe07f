package validation

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var chatIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}(--[a-zA-Z0-9_-]{1,64})?$`)

var userIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func ValidateChatID(chatID string) bool {
	return chatIDRe.MatchString(chatID)
}

func ValidateUserID(userID string) bool {
	return userIDRe.MatchString(userID)
}

func MaxMessageLength() int {
	maxStr := os.Getenv("MAX_MESSAGE_LENGTH")
	if maxStr == "" {
		return 4000
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max < 1 {
		return 4000
	}
	return max
}

func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && len(s) > max {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut]
	}
	return s
}

// NormalizeMessageText trims and caps message text; an empty result
// means the send should be rejected locally without a store round trip.
func NormalizeMessageText(s string) string {
	return TrimAndLimit(s, MaxMessageLength())
}
