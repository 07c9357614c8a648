package smtp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	gosmtp "github.com/emersion/go-smtp"
)

func TestMessage_BuildMIME(t *testing.T) {
	msg := &Message{
		From:     "sender@x.com",
		FromName: "Sender",
		To:       "rcpt@x.com",
		Subject:  "Hello",
		Body:     "line one\nline two",
	}

	data, err := msg.BuildMIME()
	if err != nil {
		t.Fatalf("BuildMIME() error = %v", err)
	}

	s := string(data)
	if !strings.Contains(s, "From: \"Sender\" <sender@x.com>") {
		t.Errorf("missing From header in:\n%s", s)
	}
	if !strings.Contains(s, "To: rcpt@x.com") {
		t.Error("missing To header")
	}
	if !strings.Contains(s, "Subject: Hello") {
		t.Error("missing Subject header")
	}
	if !strings.Contains(s, "multipart/alternative") {
		t.Error("missing multipart/alternative content type")
	}
	if strings.Contains(s, "multipart/mixed") {
		t.Error("unexpected multipart/mixed without attachments")
	}

	// Both body parts are base64; the plain part must carry the raw body.
	encoded := base64.StdEncoding.EncodeToString([]byte(msg.Body))
	if !strings.Contains(strings.ReplaceAll(s, "\r\n", ""), encoded[:20]) {
		t.Error("plain body not found in encoded payload")
	}
}

func TestMessage_BuildMIME_SignatureInHTMLOnly(t *testing.T) {
	msg := &Message{
		From:          "sender@x.com",
		To:            "rcpt@x.com",
		Subject:       "Hi",
		Body:          "hello",
		SignatureHTML: "<b>Sig</b>",
	}

	data, err := msg.BuildMIME()
	if err != nil {
		t.Fatalf("BuildMIME() error = %v", err)
	}

	joined := strings.ReplaceAll(string(data), "\r\n", "")

	htmlEncoded := base64.StdEncoding.EncodeToString([]byte("hello<br><br><b>Sig</b>"))
	if !strings.Contains(joined, htmlEncoded) {
		t.Error("signature not appended to HTML part")
	}

	plainEncoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	if !strings.Contains(joined, plainEncoded) {
		t.Error("plain part must stay signature-free")
	}
}

func TestMessage_BuildMIME_WithAttachments(t *testing.T) {
	msg := &Message{
		From:    "sender@x.com",
		To:      "rcpt@x.com",
		Subject: "Hi",
		Body:    "hello",
		Attachments: []Attachment{
			{Filename: "report.pdf", Content: bytes.Repeat([]byte{0x42}, 100)},
		},
	}

	data, err := msg.BuildMIME()
	if err != nil {
		t.Fatalf("BuildMIME() error = %v", err)
	}

	s := string(data)
	if !strings.Contains(s, "multipart/mixed") {
		t.Error("missing multipart/mixed wrapper")
	}
	if !strings.Contains(s, `attachment; filename="report.pdf"`) {
		t.Error("missing attachment disposition")
	}
	if !strings.Contains(s, "multipart/alternative") {
		t.Error("alternative part missing inside mixed")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTemporary bool
	}{
		{
			name:          "4xx is temporary",
			err:           &gosmtp.SMTPError{Code: 450, Message: "mailbox busy"},
			wantTemporary: true,
		},
		{
			name:          "5xx is permanent",
			err:           &gosmtp.SMTPError{Code: 550, Message: "no such user"},
			wantTemporary: false,
		},
		{
			name:          "non-smtp error is temporary",
			err:           errors.New("broken pipe"),
			wantTemporary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeError(tt.err, "RCPT TO")
			var de *DeliveryError
			if !errors.As(got, &de) {
				t.Fatalf("categorizeError() = %T, want *DeliveryError", got)
			}
			if de.Temporary != tt.wantTemporary {
				t.Errorf("Temporary = %v, want %v", de.Temporary, tt.wantTemporary)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(&DeliveryError{Message: "rejected"}) {
		t.Error("DeliveryError must not be fatal")
	}
	if !IsFatal(&AuthError{Message: "bad credentials"}) {
		t.Error("AuthError must be fatal")
	}
	if IsFatal(errors.New("other")) {
		t.Error("plain error must not be fatal")
	}
}
