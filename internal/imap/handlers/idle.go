package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// Idle implements IDLE (RFC 2177). It sends the "+ idling" continuation,
// then blocks, pushing untagged responses for any change the session's
// subscription reports, until the client sends a bare "DONE" line. The
// read for DONE happens on a background goroutine since it races
// against incoming ChangeEvents; whichever arrives first on the select
// below progresses the loop.
func Idle(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	sess := hc.Conn.Session
	conn := hc.Conn

	if err := conn.Emitter().Continuation("idling"); err != nil {
		return &imap.Result{CloseConnection: true}
	}
	if err := conn.Raw().Flush(); err != nil {
		return &imap.Result{CloseConnection: true}
	}

	conn.SetIdling(true)
	defer conn.SetIdling(false)

	done := make(chan error, 1)
	go func() {
		for {
			line, err := conn.BufferedReader().ReadString('\n')
			if err != nil {
				done <- err
				return
			}
			if strings.EqualFold(strings.TrimRight(line, "\r\n"), "DONE") {
				done <- nil
				return
			}
		}
	}()

	var changes <-chan storage.ChangeEvent
	if sess != nil {
		changes = sess.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			return &imap.Result{CloseConnection: true}

		case err := <-done:
			if err != nil {
				return &imap.Result{CloseConnection: true}
			}
			if sess != nil {
				for _, msn := range sess.FlushExpunge() {
					_ = conn.Emitter().UntaggedLine(fmt.Sprintf("%d EXPUNGE", msn))
				}
			}
			return &imap.Result{Cond: imap.OK, Text: "IDLE terminated"}

		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if sess == nil {
				continue
			}
			switch ev.Kind {
			case storage.ChangeNewMessage:
				sess.AppendUID(ev.UID)
				sess.MarkRecent(ev.UID)
				_ = conn.Emitter().UntaggedLine(fmt.Sprintf("%d EXISTS", sess.Exists()))
				_ = conn.Emitter().UntaggedLine(fmt.Sprintf("%d RECENT", sess.RecentCount()))
			case storage.ChangeFlagsUpdated:
				sess.SetFlags(ev.UID, ev.Flags, ev.ModSeq)
				if msn, ok := sess.MSNForUID(ev.UID); ok {
					_ = conn.Emitter().UntaggedLine(fmt.Sprintf("%d FETCH (FLAGS %s)", msn, imap.ParenList(ev.Flags)))
				}
			case storage.ChangeExpunged:
				sess.QueueExpunge(ev.UID)
				for _, msn := range sess.FlushExpunge() {
					_ = conn.Emitter().UntaggedLine(fmt.Sprintf("%d EXPUNGE", msn))
				}
			case storage.ChangeMailboxDeleted:
				_ = conn.Emitter().Bye("Mailbox deleted")
				_ = conn.Raw().Flush()
				return &imap.Result{CloseConnection: true}
			}
			_ = conn.Raw().Flush()
		}
	}
}
