package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/imap"
)

// Login implements the plaintext LOGIN command. It does not consult the
// allow-plaintext-passwords policy, so LOGIN is accepted even on a
// connection whose CAPABILITY lists LOGINDISABLED.
func Login(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	user, ok := authenticate(ctx, hc, cmd.Args.Username, cmd.Args.Password)
	if !ok {
		if hc.Metrics != nil {
			hc.Metrics.AuthAttempt("LOGIN", false)
		}
		return &imap.Result{Cond: imap.NO, Text: "LOGIN failed"}
	}
	if hc.Metrics != nil {
		hc.Metrics.AuthAttempt("LOGIN", true)
	}
	hc.Conn.User = &user
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "LOGIN completed", StateChange: &s}
}

func authenticate(ctx context.Context, hc *imap.HandlerContext, username, password string) (authbackend.User, bool) {
	user, err := hc.Auth.ResolveLogin(ctx, username)
	if err != nil {
		return authbackend.User{}, false
	}
	ok, err := hc.Auth.VerifySecret(ctx, user, password)
	if err != nil || !ok {
		return authbackend.User{}, false
	}
	return user, true
}

// Authenticate implements AUTHENTICATE, dispatching to the negotiated
// SASL mechanism. PLAIN and ANONYMOUS are handled by go-sasl's server
// implementations; CRAM-MD5 is hand-rolled since go-sasl ships only a
// client side for it.
func Authenticate(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	mech := cmd.Args.AuthMechanism
	switch mech {
	case "PLAIN":
		return authenticatePlain(ctx, hc, cmd)
	case "ANONYMOUS":
		return authenticateAnonymous(ctx, hc, cmd)
	case "CRAM-MD5":
		return authenticateCramMD5(ctx, hc, cmd)
	default:
		if hc.Metrics != nil {
			hc.Metrics.AuthAttempt(mech, false)
		}
		return &imap.Result{Cond: imap.NO, Text: "Unsupported authentication mechanism"}
	}
}

func authenticatePlain(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	resp := cmd.Args.InitialResp
	if len(resp) == 0 {
		text, err := readContinuationLine(hc.Conn, "")
		if err != nil {
			return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE aborted"}
		}
		resp = text
	}
	decoded, err := base64.StdEncoding.DecodeString(string(resp))
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid base64 response"}
	}

	var authUser authbackend.User
	var ok bool
	srv := sasl.NewPlainServer(func(identity, username, password string) error {
		u, a := authenticate(ctx, hc, username, password)
		if !a {
			return fmt.Errorf("invalid credentials")
		}
		authUser, ok = u, true
		return nil
	})
	if _, _, err := srv.Next(decoded); err != nil || !ok {
		if hc.Metrics != nil {
			hc.Metrics.AuthAttempt("PLAIN", false)
		}
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE PLAIN failed"}
	}

	if hc.Metrics != nil {
		hc.Metrics.AuthAttempt("PLAIN", true)
	}
	hc.Conn.User = &authUser
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "AUTHENTICATE completed", StateChange: &s}
}

func authenticateAnonymous(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	var trace string
	srv := sasl.NewAnonymousServer(func(t string) error {
		trace = t
		return nil
	})
	resp := cmd.Args.InitialResp
	if len(resp) == 0 {
		text, err := readContinuationLine(hc.Conn, "")
		if err != nil {
			return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE aborted"}
		}
		resp = text
	}
	decoded, _ := base64.StdEncoding.DecodeString(string(resp))
	if _, _, err := srv.Next(decoded); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE ANONYMOUS failed"}
	}

	hc.Logger.Info("anonymous login", "trace", trace)
	if hc.Metrics != nil {
		hc.Metrics.AuthAttempt("ANONYMOUS", true)
	}
	hc.Conn.User = &authbackend.User{Login: "anonymous"}
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "AUTHENTICATE completed", StateChange: &s}
}

func authenticateCramMD5(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	challenge := fmt.Sprintf("<%d.%s>", len(hc.Conn.Capabilities()), hc.Conn.Raw().RemoteAddr().String())
	line, err := readContinuationLine(hc.Conn, base64.StdEncoding.EncodeToString([]byte(challenge)))
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE aborted"}
	}
	decoded, err := base64.StdEncoding.DecodeString(string(line))
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid base64 response"}
	}

	fields := strings.SplitN(string(decoded), " ", 2)
	if len(fields) != 2 {
		return &imap.Result{Cond: imap.BAD, Text: "Malformed CRAM-MD5 response"}
	}
	username, digest := fields[0], fields[1]

	user, err := hc.Auth.ResolveLogin(ctx, username)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE CRAM-MD5 failed"}
	}
	secret, err := cramSecret(ctx, hc, user)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE CRAM-MD5 failed"}
	}

	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(challenge))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(digest)) {
		if hc.Metrics != nil {
			hc.Metrics.AuthAttempt("CRAM-MD5", false)
		}
		return &imap.Result{Cond: imap.NO, Text: "AUTHENTICATE CRAM-MD5 failed"}
	}

	if hc.Metrics != nil {
		hc.Metrics.AuthAttempt("CRAM-MD5", true)
	}
	hc.Conn.User = &user
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "AUTHENTICATE completed", StateChange: &s}
}

// cramSecret fetches user's plaintext secret from an auth backend that
// also implements PlaintextSecret, and fails for any backend that does
// not: CRAM-MD5 needs the shared secret itself, not a hash of it.
func cramSecret(ctx context.Context, hc *imap.HandlerContext, user authbackend.User) (string, error) {
	type secretProvider interface {
		PlaintextSecret(ctx context.Context, user authbackend.User) (string, error)
	}
	sp, ok := hc.Auth.(secretProvider)
	if !ok {
		return "", fmt.Errorf("auth backend does not support CRAM-MD5")
	}
	return sp.PlaintextSecret(ctx, user)
}

// readContinuationLine writes a "+ " continuation (base64-encoded
// challenge, or empty for a bare "+ ") and blocks for the client's
// next line, which SASL continuation responses send un-framed by the
// normal command grammar.
func readContinuationLine(conn *imap.Connection, challengeB64 string) ([]byte, error) {
	if err := conn.Emitter().Continuation(challengeB64); err != nil {
		return nil, err
	}
	if err := conn.Raw().Flush(); err != nil {
		return nil, err
	}
	line, err := conn.BufferedReader().ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
