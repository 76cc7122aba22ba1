package handlers

import (
	"context"

	"github.com/archiveopteryx/imapd/internal/imap"
)

// StartTLS interposes a TLS handshake on the connection's byte stream
// (spec §4.D). The tagged OK must reach the client before any byte of
// the handshake is read, so the handler writes and flushes it itself,
// then upgrades the connection before returning.
func StartTLS(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Raw().IsTLS() {
		return &imap.Result{Cond: imap.BAD, Text: "Nested STARTTLS"}
	}

	if err := hc.Conn.Emitter().Tagged(cmd.Tag, imap.OK, "", "Begin TLS negotiation now"); err != nil {
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}
	if err := hc.Conn.Raw().Flush(); err != nil {
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}

	if err := hc.Conn.Raw().UpgradeToTLS(nil); err != nil {
		hc.Logger.Warn("TLS handshake failed", "error", err)
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}
	hc.Conn.RebindIO()
	if hc.Metrics != nil {
		hc.Metrics.TLSConnectionEstablished()
	}

	return &imap.Result{TaggedAlreadySent: true}
}

// Compress interposes DEFLATE compression on the byte stream (RFC
// 4978), supplemented beyond spec.md per SPEC_FULL §5 — the same
// interposition mechanism as STARTTLS, a different transform.
func Compress(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if cmd.Args.AuthMechanism != "DEFLATE" {
		return &imap.Result{Cond: imap.NO, Text: "Unsupported COMPRESS mechanism"}
	}

	if err := hc.Conn.Emitter().Tagged(cmd.Tag, imap.OK, "", "DEFLATE active"); err != nil {
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}
	if err := hc.Conn.Raw().Flush(); err != nil {
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}

	if err := hc.Conn.Raw().UpgradeToDeflate(); err != nil {
		hc.Logger.Warn("COMPRESS negotiation failed", "error", err)
		return &imap.Result{CloseConnection: true, TaggedAlreadySent: true}
	}
	hc.Conn.RebindIO()

	return &imap.Result{TaggedAlreadySent: true}
}
