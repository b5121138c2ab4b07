package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID is in the format "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateConversationID generates a unique conversation ID with "c_" prefix.
func GenerateConversationID() string {
	return GenerateRandomID("c_", 32)
}

// GenerateMessageID generates a unique message ID with "m_" prefix.
func GenerateMessageID() string {
	return GenerateRandomID("m_", 32)
}

// GenerateProfileID generates a unique customer profile ID with "cp_" prefix.
func GenerateProfileID() string {
	return GenerateRandomID("cp_", 32)
}
