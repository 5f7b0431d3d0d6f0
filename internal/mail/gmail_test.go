package mail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"four digit code", "Your sign-in code is 4821. It expires in 15 minutes.", "4821"},
		{"six digit code", "Enter 384200 to continue", "384200"},
		{"no code", "Someone new signed into your account.", ""},
		{"ignores long numbers", "Order 12345678901 confirmed, code 7731", "7731"},
		{"empty body", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCode(tt.body))
		})
	}
}

func TestPlainTextPrefersTextPart(t *testing.T) {
	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	msg := gmailMessage{
		Snippet: "snippet fallback",
		Payload: gmailPayload{
			MimeType: "multipart/alternative",
			Parts: []gmailPayload{
				{MimeType: "text/html", Body: gmailBody{Data: encode("<b>code 9999</b>")}},
				{MimeType: "text/plain", Body: gmailBody{Data: encode("your code is 4821")}},
			},
		},
	}

	assert.Equal(t, "your code is 4821", msg.plainText())
}

func TestPlainTextPrefersNestedTextPart(t *testing.T) {
	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	// multipart/mixed wrapping a multipart/alternative: the plain part is
	// two levels deep and listed after the HTML sibling.
	msg := gmailMessage{
		Payload: gmailPayload{
			MimeType: "multipart/mixed",
			Parts: []gmailPayload{
				{
					MimeType: "multipart/alternative",
					Parts: []gmailPayload{
						{MimeType: "text/html", Body: gmailBody{Data: encode("<b>code 9999</b>")}},
						{MimeType: "text/plain", Body: gmailBody{Data: encode("your code is 4821")}},
					},
				},
			},
		},
	}

	assert.Equal(t, "your code is 4821", msg.plainText())
}

func TestPlainTextFallsBackToHTMLWhenNoTextPart(t *testing.T) {
	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	msg := gmailMessage{
		Payload: gmailPayload{
			MimeType: "multipart/alternative",
			Parts: []gmailPayload{
				{MimeType: "text/html", Body: gmailBody{Data: encode("<b>code 9999</b>")}},
			},
		},
	}

	assert.Equal(t, "<b>code 9999</b>", msg.plainText())
	assert.Equal(t, "9999", extractCode(msg.plainText()))
}

func TestPlainTextFallsBackToSingleBody(t *testing.T) {
	msg := gmailMessage{
		Payload: gmailPayload{
			MimeType: "text/plain",
			Body:     gmailBody{Data: base64.RawURLEncoding.EncodeToString([]byte("code 1234"))},
		},
	}
	assert.Equal(t, "code 1234", msg.plainText())
}
