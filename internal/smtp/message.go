package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// Attachment is a file attached to every message in a run.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one outbound email ready for submission.
type Message struct {
	From          string
	FromName      string
	To            string
	Subject       string
	Body          string
	SignatureHTML string
	Attachments   []Attachment
}

// BuildMIME assembles the RFC 5322 payload: a multipart/alternative
// body with text/plain and text/html parts (newlines become <br> in the
// HTML part, the signature is appended to the HTML part only), wrapped
// in multipart/mixed when attachments are present.
func (m *Message) BuildMIME() ([]byte, error) {
	altBody, altContentType, err := m.buildAlternative()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	from := mail.Address{Name: m.FromName, Address: m.From}
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	if len(m.Attachments) == 0 {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", altContentType)
		buf.Write(altBody)
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", altContentType)
	part, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(altBody); err != nil {
		return nil, err
	}

	for _, att := range m.Attachments {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/octet-stream")
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))

		part, err := mixed.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, att.Content); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildAlternative renders the text/plain + text/html alternative and
// returns its body together with the Content-Type value carrying the
// boundary.
func (m *Message) buildAlternative() ([]byte, string, error) {
	var buf bytes.Buffer
	alt := multipart.NewWriter(&buf)

	plainHeader := textproto.MIMEHeader{}
	plainHeader.Set("Content-Type", "text/plain; charset=utf-8")
	plainHeader.Set("Content-Transfer-Encoding", "base64")
	part, err := alt.CreatePart(plainHeader)
	if err != nil {
		return nil, "", err
	}
	if err := writeBase64(part, []byte(m.Body)); err != nil {
		return nil, "", err
	}

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlHeader.Set("Content-Transfer-Encoding", "base64")
	part, err = alt.CreatePart(htmlHeader)
	if err != nil {
		return nil, "", err
	}
	if err := writeBase64(part, []byte(m.htmlBody())); err != nil {
		return nil, "", err
	}

	if err := alt.Close(); err != nil {
		return nil, "", err
	}

	contentType := fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())
	return buf.Bytes(), contentType, nil
}

// htmlBody renders the plain body as HTML, preserving line breaks, and
// appends the signature block when one is configured.
func (m *Message) htmlBody() string {
	html := strings.ReplaceAll(m.Body, "\n", "<br>")
	if m.SignatureHTML != "" {
		html += "<br><br>" + m.SignatureHTML
	}
	return html
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	// 76-char lines per RFC 2045.
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", encoded)
	return err
}
