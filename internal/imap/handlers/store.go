package handlers

import (
	"context"
	"fmt"

	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// Store implements STORE/UID STORE: FLAGS/+FLAGS/-FLAGS, optional
// .SILENT suppression of the resulting untagged FETCH, and CONDSTORE's
// UNCHANGEDSINCE conflict reporting (spec §4.G, SPEC_FULL §5).
func Store(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	sess := hc.Conn.Session
	if sess.ReadOnly {
		return &imap.Result{Cond: imap.NO, Text: "Mailbox is read-only"}
	}

	var uids []uint32
	if cmd.UID {
		uids = sess.ExpandUID(cmd.Args.Sequence)
	} else {
		for _, msn := range sess.ExpandMSN(cmd.Args.Sequence) {
			if u, ok := sess.UIDForMSN(msn); ok {
				uids = append(uids, u)
			}
		}
	}
	if len(uids) == 0 {
		return &imap.Result{Cond: imap.OK, Text: "STORE completed"}
	}

	var op storage.FlagOp
	switch cmd.Args.StoreOp {
	case imap.StoreAdd:
		op = storage.FlagOpAdd
	case imap.StoreRemove:
		op = storage.FlagOpRemove
	default:
		op = storage.FlagOpSet
	}

	mod, err := hc.Storage.ModifyFlags(ctx, sess.Mailbox, uids, op, cmd.Args.Flags, cmd.Args.UnchangedSince)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "STORE failed: " + err.Error()}
	}

	if !cmd.Args.StoreSilent {
		results, ferr := hc.Storage.Fetch(ctx, sess.Mailbox, mod.ModifiedUIDs, storage.AttributeSet{Flags: true})
		if ferr == nil {
			for fr := range results {
				if fr.Err != nil {
					continue
				}
				sess.SetFlags(fr.Attrs.UID, fr.Attrs.Flags, fr.Attrs.ModSeq)
				msn, ok := sess.MSNForUID(fr.Attrs.UID)
				if !ok {
					continue
				}
				line := fmt.Sprintf("%d FETCH (FLAGS %s", msn, imap.ParenList(fr.Attrs.Flags))
				if cmd.UID {
					line += fmt.Sprintf(" UID %d", fr.Attrs.UID)
				}
				line += ")"
				cmd.Untagged = append(cmd.Untagged, line)
			}
		}
	} else {
		for _, uid := range mod.ModifiedUIDs {
			sess.SetFlags(uid, cmd.Args.Flags, 0)
		}
	}

	if len(mod.ConflictedUIDs) > 0 {
		return &imap.Result{Cond: imap.OK, RespCode: "MODIFIED " + imap.FormatUIDSet(mod.ConflictedUIDs), Text: "STORE completed"}
	}

	return &imap.Result{Cond: imap.OK, Text: "STORE completed"}
}
