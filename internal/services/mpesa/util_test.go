package mpesa

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"leading zero", "0712345678", "254712345678"},
		{"already prefixed", "254712345678", "254712345678"},
		{"plus prefix", "+254712345678", "254712345678"},
		{"bare subscriber number", "712345678", "254712345678"},
		{"surrounding whitespace", " 0712345678 ", "254712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2019, 12, 19, 10, 21, 15, 0, time.UTC)
	assert.Equal(t, "20191219102115", Timestamp(at))
}

func TestPassword(t *testing.T) {
	password := Password("174379", "passkey", "20191219102115")

	decoded, err := base64.StdEncoding.DecodeString(password)
	assert.NoError(t, err)
	assert.Equal(t, "174379passkey20191219102115", string(decoded))
}

func TestPassword_ChangesWithTimestamp(t *testing.T) {
	first := Password("174379", "passkey", "20191219102115")
	second := Password("174379", "passkey", "20191219102116")

	assert.NotEqual(t, first, second)
}
