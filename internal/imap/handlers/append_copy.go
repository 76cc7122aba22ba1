package handlers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/archiveopteryx/imapd/internal/imap"
)

// Append implements APPEND (spec §4.G), returning an APPENDUID response
// code per RFC 4315 (UIDPLUS, advertised in Capabilities).
func Append(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}

	when := time.Now()
	if cmd.Args.InternalDate != "" {
		if t, perr := imap.ParseIMAPDate(cmd.Args.InternalDate); perr == nil {
			when = t
		}
	}

	status, err := hc.Storage.Status(ctx, name)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "[TRYCREATE] No such mailbox"}
	}
	uidvalidity := status.UIDValidity

	uid, err := hc.Storage.Append(ctx, name, bytes.NewReader(cmd.Args.MessageLiteral), cmd.Args.Flags, when)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "APPEND failed: " + err.Error()}
	}

	if hc.Conn.Session != nil && hc.Conn.Session.Mailbox == name {
		hc.Conn.Session.AppendUID(uid)
		hc.Conn.Session.MarkRecent(uid)
	}

	return &imap.Result{
		Cond:     imap.OK,
		RespCode: fmt.Sprintf("APPENDUID %d %d", uidvalidity, uid),
		Text:     "APPEND completed",
	}
}

// Copy implements COPY/UID COPY, returning a COPYUID response code.
func Copy(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	dst, err := imap.DecodeMailboxName(cmd.Args.NewMailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}

	var uids []uint32
	if cmd.UID {
		uids = hc.Conn.Session.ExpandUID(cmd.Args.Sequence)
	} else {
		msns := hc.Conn.Session.ExpandMSN(cmd.Args.Sequence)
		for _, msn := range msns {
			if u, ok := hc.Conn.Session.UIDForMSN(msn); ok {
				uids = append(uids, u)
			}
		}
	}
	if len(uids) == 0 {
		return &imap.Result{Cond: imap.NO, Text: "No messages in range"}
	}

	dstStatus, err := hc.Storage.Status(ctx, dst)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "[TRYCREATE] No such mailbox"}
	}

	destUIDs, err := hc.Storage.Copy(ctx, hc.Conn.Session.Mailbox, dst, uids)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "COPY failed: " + err.Error()}
	}

	return &imap.Result{
		Cond:     imap.OK,
		RespCode: fmt.Sprintf("COPYUID %d %s %s", dstStatus.UIDValidity, imap.FormatUIDSet(uids), imap.FormatUIDSet(destUIDs)),
		Text:     "COPY completed",
	}
}
