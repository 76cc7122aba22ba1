package imap

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func newTestEmitter() (*Emitter, *bytes.Buffer) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	return NewEmitter(w), &buf
}

func TestEmitterUntagged(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Untagged("EXISTS", "3"); err != nil {
		t.Fatalf("Untagged: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "* EXISTS 3\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterUntaggedNoPayload(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Untagged("BYE", ""); err != nil {
		t.Fatalf("Untagged: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "* BYE\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterUntaggedLine(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.UntaggedLine("3 EXPUNGE"); err != nil {
		t.Fatalf("UntaggedLine: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "* 3 EXPUNGE\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterContinuation(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Continuation("ready"); err != nil {
		t.Fatalf("Continuation: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "+ ready\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterTaggedWithRespCode(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Tagged("a1", OK, "READ-WRITE", "SELECT completed"); err != nil {
		t.Fatalf("Tagged: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "a1 OK [READ-WRITE] SELECT completed\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterTaggedNoRespCode(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Tagged("a1", BAD, "", "No such command"); err != nil {
		t.Fatalf("Tagged: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "a1 BAD No such command\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitterBye(t *testing.T) {
	e, buf := newTestEmitter()
	if err := e.Bye("server shutting down"); err != nil {
		t.Fatalf("Bye: %v", err)
	}
	e.w.Flush()
	if got := buf.String(); got != "* BYE server shutting down\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestQuoteOrLiteralPlainString(t *testing.T) {
	got := QuoteOrLiteral("hello world")
	if got != `"hello world"` {
		t.Errorf("QuoteOrLiteral(%q) = %q", "hello world", got)
	}
}

func TestQuoteOrLiteralWithCRLF(t *testing.T) {
	got := QuoteOrLiteral("line1\r\nline2")
	if !strings.HasPrefix(got, "{") {
		t.Errorf("QuoteOrLiteral with embedded CRLF = %q, want a literal", got)
	}
}

func TestQuoteOrLiteralLongString(t *testing.T) {
	long := strings.Repeat("a", literalThreshold+1)
	got := QuoteOrLiteral(long)
	if !strings.HasPrefix(got, "{") {
		t.Error("QuoteOrLiteral on a long string should produce a literal")
	}
}
