package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// macroAttributes expands the ALL/FAST/FULL fetch-macro shorthand into
// the attribute list it stands for (RFC 3501 §6.4.5).
func macroAttributes(macro string) []string {
	switch macro {
	case "ALL":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}
	case "FAST":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE"}
	case "FULL":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "BODY"}
	default:
		return nil
	}
}

// Fetch implements FETCH/UID FETCH. It resolves the sequence set against
// the session's stable view, asks the storage backend for the union of
// requested attributes, then renders one untagged FETCH line per
// message in ascending MSN order.
func Fetch(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	sess := hc.Conn.Session

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
		return &imap.Result{Cond: imap.OK, Text: "FETCH completed"}
	}

	attrs := cmd.Args.Attributes
	if cmd.Args.FetchMacro != "" {
		attrs = macroAttributes(cmd.Args.FetchMacro)
	}
	if cmd.UID {
		hasUID := false
		for _, a := range attrs {
			if strings.EqualFold(a, "UID") {
				hasUID = true
			}
		}
		if !hasUID {
			attrs = append(attrs, "UID")
		}
	}

	set, peekOnly := buildAttributeSet(attrs)

	results, err := hc.Storage.Fetch(ctx, sess.Mailbox, uids, set)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "FETCH failed: " + err.Error()}
	}

	for fr := range results {
		if fr.Err != nil {
			continue
		}
		msn, ok := sess.MSNForUID(fr.Attrs.UID)
		if !ok {
			continue
		}

		if !peekOnly && requestsBody(attrs) {
			if !hasFlag(fr.Attrs.Flags, `\Seen`) {
				newFlags := append(append([]string(nil), fr.Attrs.Flags...), `\Seen`)
				mod, merr := hc.Storage.ModifyFlags(ctx, sess.Mailbox, []uint32{fr.Attrs.UID}, storage.FlagOpSet, newFlags, -1)
				if merr == nil && len(mod.ModifiedUIDs) == 1 {
					fr.Attrs.Flags = newFlags
					sess.SetFlags(fr.Attrs.UID, newFlags, 0)
				}
			}
		}

		cmd.Untagged = append(cmd.Untagged, fmt.Sprintf("%d FETCH (%s)", msn, renderFetch(attrs, fr.Attrs, cmd.UID)))
	}

	return &imap.Result{Cond: imap.OK, Text: "FETCH completed"}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func requestsBody(attrs []string) bool {
	for _, a := range attrs {
		u := strings.ToUpper(a)
		if strings.HasPrefix(u, "BODY[") || u == "BODY" || strings.HasPrefix(u, "RFC822") {
			if strings.Contains(u, ".PEEK") {
				continue
			}
			return true
		}
	}
	return false
}

func buildAttributeSet(attrs []string) (storage.AttributeSet, bool) {
	var set storage.AttributeSet
	peekOnly := true
	for _, a := range attrs {
		u := strings.ToUpper(a)
		switch {
		case u == "FLAGS", u == "UID":
			set.Flags = true
		case u == "ENVELOPE":
			set.Envelope = true
		case u == "BODYSTRUCTURE", u == "BODY":
			set.BodyStructure = true
		case u == "RFC822.HEADER":
			set.Header = true
		case strings.HasPrefix(u, "BODY.PEEK["), strings.HasPrefix(u, "BODY["):
			set.BodySection = a
			if !strings.Contains(u, ".PEEK") {
				peekOnly = false
			}
		case u == "RFC822", u == "RFC822.TEXT":
			set.Body = true
			peekOnly = false
		}
	}
	return set, peekOnly
}

func renderFetch(attrs []string, m storage.MessageAttrs, withUID bool) string {
	var parts []string
	seenUID := false
	for _, a := range attrs {
		u := strings.ToUpper(a)
		switch {
		case u == "UID":
			parts = append(parts, "UID "+strconv.FormatUint(uint64(m.UID), 10))
			seenUID = true
		case u == "FLAGS":
			parts = append(parts, "FLAGS "+imap.ParenList(m.Flags))
		case u == "INTERNALDATE":
			parts = append(parts, "INTERNALDATE "+imap.QuoteOrLiteral(imap.FormatIMAPDate(m.InternalDate)))
		case u == "RFC822.SIZE":
			parts = append(parts, "RFC822.SIZE "+strconv.FormatInt(m.Size, 10))
		case u == "ENVELOPE":
			parts = append(parts, "ENVELOPE "+m.Envelope)
		case u == "BODYSTRUCTURE":
			parts = append(parts, "BODYSTRUCTURE "+m.BodyStructure)
		case u == "BODY" && m.BodyStructure != "":
			parts = append(parts, "BODY "+m.BodyStructure)
		case u == "RFC822.HEADER":
			parts = append(parts, "RFC822.HEADER "+imap.QuoteOrLiteral(string(m.Header)))
		case u == "RFC822", u == "RFC822.TEXT":
			parts = append(parts, a+" "+imap.QuoteOrLiteral(string(m.Body)))
		case strings.HasPrefix(u, "BODY[") || strings.HasPrefix(u, "BODY.PEEK["):
			parts = append(parts, a+" "+imap.QuoteOrLiteral(string(m.Body)))
		}
	}
	if withUID && !seenUID {
		parts = append([]string{"UID " + strconv.FormatUint(uint64(m.UID), 10)}, parts...)
	}
	return strings.Join(parts, " ")
}
