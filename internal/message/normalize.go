package message

import (
	"bytes"
	"fmt"
	"io"
	"mime/quotedprintable"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// \s is ASCII-only in RE2; \p{Z} adds NBSP and the other Unicode spaces the
// HTML converter emits for &nbsp; paragraphs.
var blankLines = regexp.MustCompile(`\n[\s\p{Z}]*\n`)

// Normalize replaces e.Body with markdown text: quoted-printable escapes are
// reversed, invalid UTF-8 is dropped, HTML is converted to markdown and runs
// of blank lines are collapsed.
func Normalize(e *Email) {
	text := strings.ToValidUTF8(string(unquote([]byte(e.Body))), "")

	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		md = text
	}
	e.Body = CollapseBlankLines(md)
}

// NormalizeAll normalizes every email in place.
func NormalizeAll(emails []Email) {
	for i := range emails {
		Normalize(&emails[i])
	}
}

// CollapseBlankLines turns every run of blank lines into a single one.
// Lines holding only whitespace, including non-breaking spaces, count as
// blank.
func CollapseBlankLines(s string) string {
	return blankLines.ReplaceAllString(s, "\n\n")
}

// unquote reverses quoted-printable encoding. Bytes the strict decoder
// rejects, such as bare control characters and malformed escapes, are kept
// as they are while the valid escapes around them are still decoded.
func unquote(b []byte) []byte {
	out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(escapeInvalid(b))))
	if err != nil {
		return b
	}
	return out
}

// escapeInvalid rewrites every byte that mime/quotedprintable would refuse
// into an =XX escape of itself, so decoding yields the original byte.
func escapeInvalid(b []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '=':
			if validEscape(b[i+1:]) {
				buf.WriteByte(c)
			} else {
				buf.WriteString("=3D")
			}
		case c == '\t' || c == '\r' || c == '\n' || c >= 0x80:
			buf.WriteByte(c)
		case c < ' ' || c > '~':
			fmt.Fprintf(&buf, "=%02X", c)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// validEscape reports whether rest, the bytes following an '=', form a hex
// escape or a soft line break.
func validEscape(rest []byte) bool {
	if len(rest) >= 2 && isHex(rest[0]) && isHex(rest[1]) {
		return true
	}
	return len(rest) == 0 || bytes.HasPrefix(rest, []byte("\n")) || bytes.HasPrefix(rest, []byte("\r\n"))
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'F') || ('a' <= c && c <= 'f')
}
