// Package message turns raw RFC 5322 mail into chat-ready text.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Email is the decoded form of one message. Body holds the transfer-decoded
// payload after Decode and markdown text after Normalize.
type Email struct {
	Subject string
	Body    string
	Snippet string
}

var errFound = errors.New("plain text part found")

// Decode parses raw as a MIME message. For multipart messages Body is the
// first inline text/plain part in depth-first order, or empty when there is
// none. Unknown charsets and transfer encodings are tolerated.
func Decode(raw []byte, snippet string) (Email, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return Email{}, fmt.Errorf("parse message: %w", err)
	}

	email := Email{
		Subject: subject(entity.Header),
		Snippet: snippet,
	}

	if !isMultipart(entity.Header) {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return Email{}, fmt.Errorf("read body: %w", err)
		}
		email.Body = string(body)
		return email, nil
	}

	err = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !tolerable(err) {
			return err
		}
		if !isInlinePlainText(part.Header) {
			return nil
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("read text part: %w", err)
		}
		email.Body = string(body)
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) {
		return Email{}, fmt.Errorf("walk parts: %w", err)
	}
	return email, nil
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func subject(h message.Header) string {
	s, err := (&mail.Header{Header: h}).Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return s
}

func isMultipart(h message.Header) bool {
	t, _, err := h.ContentType()
	return err == nil && strings.HasPrefix(t, "multipart/")
}

func isInlinePlainText(h message.Header) bool {
	ctype := "text/plain"
	if h.Get("Content-Type") != "" {
		t, _, err := h.ContentType()
		if err != nil {
			return false
		}
		ctype = t
	}
	if ctype != "text/plain" {
		return false
	}
	return !strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment")
}
