// Package handlers implements the IMAP4rev1 command execution core
// (spec component G): one file per command family, each a
// imap.HandlerFunc registered by Registry into the connection's
// Dispatcher.
package handlers

import (
	"context"
	"sort"
	"strings"

	"github.com/archiveopteryx/imapd/internal/imap"
)

// Registry builds the full command-name to handler table wired into
// imap.NewDispatcher by cmd/imapd.
func Registry() map[imap.Name]imap.HandlerFunc {
	return map[imap.Name]imap.HandlerFunc{
		imap.CmdCapability:   Capability,
		imap.CmdNoop:         Noop,
		imap.CmdLogout:       Logout,
		imap.CmdID:           ID,
		imap.CmdAuthenticate: Authenticate,
		imap.CmdLogin:        Login,
		imap.CmdStarttls:     StartTLS,
		imap.CmdCompress:     Compress,
		imap.CmdSelect:       Select,
		imap.CmdExamine:      Examine,
		imap.CmdCreate:       Create,
		imap.CmdDelete:       Delete,
		imap.CmdRename:       Rename,
		imap.CmdSubscribe:    Subscribe,
		imap.CmdUnsubscribe:  Unsubscribe,
		imap.CmdList:         List,
		imap.CmdLsub:         Lsub,
		imap.CmdStatus:       Status,
		imap.CmdAppend:       Append,
		imap.CmdNamespace:    Namespace,
		imap.CmdCheck:        Check,
		imap.CmdClose:        Close,
		imap.CmdUnselect:     Unselect,
		imap.CmdExpunge:      Expunge,
		imap.CmdSearch:       Search,
		imap.CmdFetch:        Fetch,
		imap.CmdStore:        Store,
		imap.CmdCopy:         Copy,
		imap.CmdIdle:         Idle,
	}
}

// Capability answers CAPABILITY: a never-blocking, all-states command.
func Capability(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	caps := hc.Conn.Capabilities()
	cmd.Untagged = append(cmd.Untagged, "CAPABILITY "+strings.Join(caps, " "))
	return &imap.Result{Cond: imap.OK, Text: "CAPABILITY completed"}
}

// Noop does nothing beyond allowing any pending untagged output (flag
// changes, new messages) to be flushed, which the connection loop
// already does between commands.
func Noop(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return &imap.Result{Cond: imap.OK, Text: "NOOP completed"}
}

// Logout transitions to Logout and emits the untagged BYE the spec's
// exit-conditions require before the tagged OK.
func Logout(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	cmd.Untagged = append(cmd.Untagged, "BYE logging out")
	s := imap.Logout
	return &imap.Result{Cond: imap.OK, Text: "LOGOUT completed", StateChange: &s, CloseConnection: true}
}

// ID exchanges client/server identification parameters (RFC 2971),
// supplemented beyond spec.md per SPEC_FULL §5.
func ID(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if len(cmd.Args.IDParams) > 0 {
		keys := make([]string, 0, len(cmd.Args.IDParams))
		for k := range cmd.Args.IDParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, k, cmd.Args.IDParams[k])
		}
		hc.Logger.Debug("client ID", "params", strings.Join(parts, " "))
	}

	const resp = `ID ("name" "archiveopteryx-imapd" "version" "1.0" ` +
		`"vendor" "Archiveopteryx Project")`
	cmd.Untagged = append(cmd.Untagged, resp)
	return &imap.Result{Cond: imap.OK, Text: "ID completed"}
}

// Check is a no-op checkpoint; there is nothing to checkpoint in this
// implementation's storage model beyond flushing pending expunges,
// which the connection loop already does between commands.
func Check(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	return &imap.Result{Cond: imap.OK, Text: "CHECK completed"}
}

// Close deselects the mailbox, permanently expunging \Deleted messages
// without reporting them (spec §4.E invariant 3).
func Close(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	sess := hc.Conn.Session
	if sess == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	if !sess.ReadOnly {
		if _, err := hc.Storage.Expunge(ctx, sess.Mailbox); err != nil {
			return &imap.Result{Cond: imap.NO, Text: "CLOSE failed: " + err.Error()}
		}
	}
	sess.DiscardPendingExpunge()
	hc.Conn.Session = nil
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "CLOSE completed", StateChange: &s}
}

// Unselect deselects the mailbox without expunging, per RFC 3691.
func Unselect(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	hc.Conn.Session.DiscardPendingExpunge()
	hc.Conn.Session = nil
	s := imap.Authenticated
	return &imap.Result{Cond: imap.OK, Text: "UNSELECT completed", StateChange: &s}
}

// Namespace advertises a single personal namespace, as this
// implementation does not model shared or other-users namespaces.
func Namespace(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	cmd.Untagged = append(cmd.Untagged, `NAMESPACE (("" "/")) NIL NIL`)
	return &imap.Result{Cond: imap.OK, Text: "NAMESPACE completed"}
}
