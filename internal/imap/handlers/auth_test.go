package handlers

import (
	"bufio"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"context"

	"github.com/archiveopteryx/imapd/internal/imap"
)

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{Args: imap.Args{Username: "alice", Password: "hunter2"}}
	res := Login(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("LOGIN failed: %s", res.Text)
	}
	if res.StateChange == nil || *res.StateChange != imap.Authenticated {
		t.Error("LOGIN must transition to Authenticated")
	}
	if h.hc.Conn.User == nil || h.hc.Conn.User.Login != "alice" {
		t.Error("LOGIN must set the connection's user")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{Args: imap.Args{Username: "alice", Password: "wrong"}}
	res := Login(context.Background(), h.hc, cmd)
	if res.Cond != imap.NO {
		t.Errorf("got %v, want NO", res.Cond)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{Args: imap.Args{Username: "nobody", Password: "whatever"}}
	res := Login(context.Background(), h.hc, cmd)
	if res.Cond != imap.NO {
		t.Errorf("got %v, want NO", res.Cond)
	}
}

func TestAuthenticatePlainSuccess(t *testing.T) {
	h := newHarness(t)
	initial := base64.StdEncoding.EncodeToString([]byte("\x00alice\x00hunter2"))
	cmd := &imap.ParsedCommand{Args: imap.Args{AuthMechanism: "PLAIN", InitialResp: []byte(initial)}}
	res := Authenticate(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("AUTHENTICATE PLAIN failed: %s", res.Text)
	}
	if h.hc.Conn.User == nil || h.hc.Conn.User.Login != "alice" {
		t.Error("AUTHENTICATE PLAIN must set the connection's user")
	}
}

func TestAuthenticatePlainBadCredentials(t *testing.T) {
	h := newHarness(t)
	initial := base64.StdEncoding.EncodeToString([]byte("\x00alice\x00wrong"))
	cmd := &imap.ParsedCommand{Args: imap.Args{AuthMechanism: "PLAIN", InitialResp: []byte(initial)}}
	res := Authenticate(context.Background(), h.hc, cmd)
	if res.Cond != imap.NO {
		t.Errorf("got %v, want NO", res.Cond)
	}
}

func TestAuthenticateUnsupportedMechanism(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{Args: imap.Args{AuthMechanism: "DIGEST-MD5"}}
	res := Authenticate(context.Background(), h.hc, cmd)
	if res.Cond != imap.NO {
		t.Errorf("got %v, want NO", res.Cond)
	}
}

func TestAuthenticateAnonymous(t *testing.T) {
	h := newHarness(t)
	initial := base64.StdEncoding.EncodeToString([]byte("tracer"))
	cmd := &imap.ParsedCommand{Args: imap.Args{AuthMechanism: "ANONYMOUS", InitialResp: []byte(initial)}}
	res := Authenticate(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("AUTHENTICATE ANONYMOUS failed: %s", res.Text)
	}
	if h.hc.Conn.User == nil || h.hc.Conn.User.Login != "anonymous" {
		t.Error("AUTHENTICATE ANONYMOUS must set an anonymous user")
	}
}

// TestAuthenticateCramMD5 drives the continuation exchange by acting as
// the client on the net.Pipe while the handler blocks on its own read.
func TestAuthenticateCramMD5(t *testing.T) {
	h := newHarness(t)
	reader := bufio.NewReader(h.client)

	done := make(chan *imap.Result, 1)
	go func() {
		cmd := &imap.ParsedCommand{Args: imap.Args{AuthMechanism: "CRAM-MD5"}}
		done <- Authenticate(context.Background(), h.hc, cmd)
	}()

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading continuation: %v", err)
	}
	line = strings.TrimPrefix(strings.TrimRight(line, "\r\n"), "+ ")
	challenge, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		t.Fatalf("decoding challenge: %v", err)
	}

	mac := hmac.New(md5.New, []byte("hunter2"))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))
	resp := base64.StdEncoding.EncodeToString([]byte("alice " + digest))
	if _, err := h.client.Write([]byte(resp + "\r\n")); err != nil {
		t.Fatalf("writing response: %v", err)
	}

	res := <-done
	if res.Cond != imap.OK {
		t.Fatalf("AUTHENTICATE CRAM-MD5 failed: %s", res.Text)
	}
	if h.hc.Conn.User == nil || h.hc.Conn.User.Login != "alice" {
		t.Error("AUTHENTICATE CRAM-MD5 must set the connection's user")
	}
}
