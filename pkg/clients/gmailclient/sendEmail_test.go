package gmailclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("ops@example.com", "client@example.com", "No cleaner yet", "Please choose")
	assert.Equal(t, "From: ops@example.com\r\nTo: client@example.com\r\nSubject: No cleaner yet\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\nPlease choose", msg)

	noSender := buildMessage("", "client@example.com", "Hi", "Body")
	assert.NotContains(t, noSender, "From:")
	assert.Contains(t, noSender, "To: client@example.com\r\n")
}
