package handlers

import (
	"context"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/imap"
)

// Expunge permanently removes every \Deleted message in the selected
// mailbox and stages its MSNs for untagged EXPUNGE, emitted by the
// connection loop between commands (spec §4.E/§4.G).
func Expunge(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	if hc.Conn.Session.ReadOnly {
		return &imap.Result{Cond: imap.NO, Text: "Mailbox is read-only"}
	}
	if !hc.Conn.Session.Permissions.Has(authbackend.RightExpunge) {
		return &imap.Result{Cond: imap.NO, Text: "Permission denied"}
	}

	uids, err := hc.Storage.Expunge(ctx, hc.Conn.Session.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "EXPUNGE failed: " + err.Error()}
	}
	for _, uid := range uids {
		hc.Conn.Session.QueueExpunge(uid)
	}

	return &imap.Result{Cond: imap.OK, Text: "EXPUNGE completed"}
}
