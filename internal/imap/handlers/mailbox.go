package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/imap"
)

// selectMailbox implements both SELECT and EXAMINE (spec §4.G);
// EXAMINE forces read-only.
func selectMailbox(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand, forceReadOnly bool) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}

	perms, err := hc.Auth.Permissions(ctx, *hc.Conn.User, name)
	if err != nil || !perms.Has(authbackend.RightLookup, authbackend.RightRead) {
		return &imap.Result{Cond: imap.NO, Text: "Permission denied"}
	}

	status, err := hc.Storage.Status(ctx, name)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "No such mailbox"}
	}

	uids, err := hc.Storage.Search(ctx, name, nil)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "SELECT failed: " + err.Error()}
	}

	changes, err := hc.Storage.Subscribe(ctx, name)
	if err != nil {
		changes = nil
	}

	readOnly := forceReadOnly || !perms.Has(authbackend.RightWrite)
	sess := imap.NewSession(name, status, uids, readOnly, perms, changes)
	hc.Conn.Session = sess

	cmd.Untagged = append(cmd.Untagged,
		fmt.Sprintf("%d EXISTS", status.Exists),
		fmt.Sprintf("%d RECENT", status.Recent),
		fmt.Sprintf("FLAGS %s", imap.ParenList(defaultFlags(status.Flags))),
		fmt.Sprintf("OK [PERMANENTFLAGS %s] Permanent flags", imap.ParenList(defaultFlags(status.PermanentFlags))),
		fmt.Sprintf("OK [UIDVALIDITY %d] UIDs valid", status.UIDValidity),
		fmt.Sprintf("OK [UIDNEXT %d] Predicted next UID", status.UIDNext),
	)
	if status.Unseen > 0 {
		cmd.Untagged = append(cmd.Untagged, fmt.Sprintf("OK [UNSEEN %d] First unseen message", status.Unseen))
	}

	s := imap.Selected
	code := "READ-WRITE"
	if readOnly {
		code = "READ-ONLY"
	}
	return &imap.Result{Cond: imap.OK, RespCode: code, Text: "SELECT completed", StateChange: &s}
}

func defaultFlags(flags []string) []string {
	if len(flags) > 0 {
		return flags
	}
	return []string{`\Answered`, `\Flagged`, `\Deleted`, `\Seen`, `\Draft`}
}

func Select(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return selectMailbox(ctx, hc, cmd, false)
}

func Examine(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return selectMailbox(ctx, hc, cmd, true)
}

func Create(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	if err := hc.Storage.Create(ctx, name); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "CREATE failed: " + err.Error()}
	}
	return &imap.Result{Cond: imap.OK, Text: "CREATE completed"}
}

func Delete(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	perms, err := hc.Auth.Permissions(ctx, *hc.Conn.User, name)
	if err != nil || !perms.Has(authbackend.RightDeleteMailbox) {
		return &imap.Result{Cond: imap.NO, Text: "Permission denied"}
	}
	if err := hc.Storage.Delete(ctx, name); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "DELETE failed: " + err.Error()}
	}
	return &imap.Result{Cond: imap.OK, Text: "DELETE completed"}
}

func Rename(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	from, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	to, err := imap.DecodeMailboxName(cmd.Args.NewMailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	if err := hc.Storage.Rename(ctx, from, to); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "RENAME failed: " + err.Error()}
	}
	return &imap.Result{Cond: imap.OK, Text: "RENAME completed"}
}

func Subscribe(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	if err := hc.Storage.SetSubscribed(ctx, name, true); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "SUBSCRIBE failed: " + err.Error()}
	}
	return &imap.Result{Cond: imap.OK, Text: "SUBSCRIBE completed"}
}

func Unsubscribe(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	if err := hc.Storage.SetSubscribed(ctx, name, false); err != nil {
		return &imap.Result{Cond: imap.NO, Text: "UNSUBSCRIBE failed: " + err.Error()}
	}
	return &imap.Result{Cond: imap.OK, Text: "UNSUBSCRIBE completed"}
}

func listMailboxes(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand, subscribedOnly bool) *imap.Result {
	ref, err := imap.DecodeMailboxName(cmd.Args.ReferenceName)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid reference name"}
	}
	pattern, err := imap.DecodeMailboxName(cmd.Args.MailboxPattern)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox pattern"}
	}

	entries, err := hc.Storage.List(ctx, ref, pattern, subscribedOnly)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "LIST failed: " + err.Error()}
	}

	name := "LIST"
	if subscribedOnly {
		name = "LSUB"
	}
	for _, e := range entries {
		var attrs []string
		if e.NoSelect {
			attrs = append(attrs, `\Noselect`)
		}
		if e.NoInferiors {
			attrs = append(attrs, `\NoInferiors`)
		}
		if e.HasChildren {
			attrs = append(attrs, `\HasChildren`)
		} else {
			attrs = append(attrs, `\HasNoChildren`)
		}
		encoded, _ := imap.EncodeMailboxName(e.Name)
		cmd.Untagged = append(cmd.Untagged, fmt.Sprintf(
			`%s %s "%c" %s`, name, imap.ParenList(attrs), e.Delimiter, imap.QuoteOrLiteral(encoded)))
	}
	return &imap.Result{Cond: imap.OK, Text: name + " completed"}
}

func List(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return listMailboxes(ctx, hc, cmd, false)
}

func Lsub(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return listMailboxes(ctx, hc, cmd, true)
}

func Status(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	name, err := imap.DecodeMailboxName(cmd.Args.Mailbox)
	if err != nil {
		return &imap.Result{Cond: imap.BAD, Text: "Invalid mailbox name"}
	}
	st, err := hc.Storage.Status(ctx, name)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "STATUS failed: " + err.Error()}
	}

	var parts []string
	for _, attr := range cmd.Args.Attributes {
		switch attr {
		case "MESSAGES":
			parts = append(parts, "MESSAGES", strconv.Itoa(int(st.Exists)))
		case "RECENT":
			parts = append(parts, "RECENT", strconv.Itoa(int(st.Recent)))
		case "UIDNEXT":
			parts = append(parts, "UIDNEXT", strconv.Itoa(int(st.UIDNext)))
		case "UIDVALIDITY":
			parts = append(parts, "UIDVALIDITY", strconv.Itoa(int(st.UIDValidity)))
		case "UNSEEN":
			parts = append(parts, "UNSEEN", strconv.Itoa(int(st.Unseen)))
		case "HIGHESTMODSEQ":
			parts = append(parts, "HIGHESTMODSEQ", strconv.FormatUint(st.HighestModSeq, 10))
		}
	}
	encoded, _ := imap.EncodeMailboxName(name)
	cmd.Untagged = append(cmd.Untagged, fmt.Sprintf("STATUS %s (%s)", imap.QuoteOrLiteral(encoded), strings.Join(parts, " ")))
	return &imap.Result{Cond: imap.OK, Text: "STATUS completed"}
}
