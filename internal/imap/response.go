package imap

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// literalThreshold is the string length above which QuoteOrLiteral prefers
// a non-synchronizing literal over a quoted string, mirroring the
// response emitter's rule in the component design.
const literalThreshold = 1024

// RespCond is the condition word of a tagged or untagged status
// response.
type RespCond string

const (
	OK  RespCond = "OK"
	NO  RespCond = "NO"
	BAD RespCond = "BAD"
)

// Emitter formats and writes tagged, untagged and continuation
// responses to a connection's writer. It does not decide ordering;
// the dispatcher decides when to call it.
type Emitter struct {
	w *bufio.Writer
}

// NewEmitter builds an Emitter writing to w.
func NewEmitter(w *bufio.Writer) *Emitter {
	return &Emitter{w: w}
}

// Untagged writes "* <name> <payload>\r\n". payload may be empty.
func (e *Emitter) Untagged(name, payload string) error {
	if payload == "" {
		_, err := fmt.Fprintf(e.w, "* %s\r\n", name)
		return err
	}
	_, err := fmt.Fprintf(e.w, "* %s %s\r\n", name, payload)
	return err
}

// UntaggedLine writes a pre-formatted untagged line (without the
// leading "* " or trailing CRLF), used when the payload itself already
// embeds the response name, e.g. "3 EXISTS".
func (e *Emitter) UntaggedLine(line string) error {
	_, err := fmt.Fprintf(e.w, "* %s\r\n", line)
	return err
}

// Continuation writes "+ <text>\r\n".
func (e *Emitter) Continuation(text string) error {
	_, err := fmt.Fprintf(e.w, "+ %s\r\n", text)
	return err
}

// Tagged writes "<tag> <cond> [resp-code] <text>\r\n".
func (e *Emitter) Tagged(tag string, cond RespCond, respCode, text string) error {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteByte(' ')
	b.WriteString(string(cond))
	if respCode != "" {
		b.WriteString(" [")
		b.WriteString(respCode)
		b.WriteByte(']')
	}
	if text != "" {
		b.WriteByte(' ')
		b.WriteString(text)
	}
	b.WriteString("\r\n")
	_, err := e.w.WriteString(b.String())
	return err
}

// Bye writes an untagged BYE and is always the last thing written
// before a fatal-protocol-error or shutdown connection close.
func (e *Emitter) Bye(text string) error {
	return e.Untagged("BYE", text)
}

// QuoteOrLiteral renders s as a quoted string, or as a non-synchronizing
// literal if it contains CR, LF, NUL, or exceeds literalThreshold bytes
// — the cases RFC 3501 forbids inside a quoted-string.
func QuoteOrLiteral(s string) string {
	if needsLiteral(s) {
		return fmt.Sprintf("{%d+}\r\n%s", len(s), s)
	}
	return quote(s)
}

func needsLiteral(s string) bool {
	if len(s) > literalThreshold {
		return true
	}
	return strings.ContainsAny(s, "\r\n\x00")
}

func quote(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// NString renders s as NIL if empty-and-absent is meant, otherwise as
// QuoteOrLiteral(s). Callers that distinguish absent from empty string
// should call this only for the present case.
func NString(s string, present bool) string {
	if !present {
		return "NIL"
	}
	return QuoteOrLiteral(s)
}

// ParenList renders items space-joined and wrapped in parentheses,
// e.g. "(\\Seen \\Deleted)".
func ParenList(items []string) string {
	return "(" + strings.Join(items, " ") + ")"
}
