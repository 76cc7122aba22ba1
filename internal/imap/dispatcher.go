package imap

import (
	"context"
	"log/slog"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/metrics"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// HandlerContext bundles the external collaborators and per-connection
// state a command handler needs, so individual handler functions stay
// free of direct server/transport concerns.
type HandlerContext struct {
	Conn    *Connection
	Storage storage.Backend
	Auth    authbackend.Backend
	Metrics metrics.Collector
	Logger  *slog.Logger
}

// Result is a handler's outcome: the tagged response to emit, any
// state transition it caused, and whether the connection should close
// once the response has been flushed.
type Result struct {
	Cond            RespCond
	RespCode        string
	Text            string
	StateChange     *State
	CloseConnection bool

	// TaggedAlreadySent is set by handlers that must write (and flush)
	// their own tagged response before performing a byte-stream
	// interposition (STARTTLS, COMPRESS) — the dispatcher must not
	// write a second tagged line in that case.
	TaggedAlreadySent bool
}

// HandlerFunc executes one parsed command. It may append pre-formatted
// untagged lines to cmd.Untagged as it produces them; the dispatcher
// emits those, in order, before the tagged response the HandlerFunc
// returns.
type HandlerFunc func(ctx context.Context, hc *HandlerContext, cmd *ParsedCommand) *Result

// Dispatcher maps command names to their handler and enforces the
// per-state legality and group-concurrency rules of the command
// registry (spec components C and G).
type Dispatcher struct {
	handlers map[Name]HandlerFunc
}

// NewDispatcher builds a Dispatcher from an externally supplied
// handler table, avoiding an import cycle between this package and
// internal/imap/handlers (which depends on these types).
func NewDispatcher(handlers map[Name]HandlerFunc) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// checkLegality validates cmd.Name against the current connection
// state before the handler ever runs, per the registry table.
func (d *Dispatcher) checkLegality(name Name, state State) (registryEntry, *Result) {
	entry, ok := lookup(name)
	if !ok {
		return entry, &Result{Cond: BAD, Text: "No such command"}
	}
	if !entry.states.allows(state) {
		return entry, &Result{Cond: BAD, Text: "Not permitted in this state"}
	}
	return entry, nil
}

// Dispatch runs one command's handler, having already validated its
// per-state legality. Callers (Connection.runBatch) handle group
// batching; Dispatch itself runs exactly one command.
func (d *Dispatcher) Dispatch(ctx context.Context, hc *HandlerContext, cmd *ParsedCommand) *Result {
	_, badResult := d.checkLegality(cmd.Name, hc.Conn.State)
	if badResult != nil {
		return badResult
	}
	h, ok := d.handlers[cmd.Name]
	if !ok {
		return &Result{Cond: BAD, Text: "Not implemented"}
	}
	return h(ctx, hc, cmd)
}

// nextBatch pops the next group of commands from pending that may run
// together: either a single group-0 command, or the maximal run of
// consecutive commands sharing one nonzero group. It returns the batch
// and the remaining queue.
func nextBatch(pending []*ParsedCommand) (batch []*ParsedCommand, rest []*ParsedCommand) {
	if len(pending) == 0 {
		return nil, nil
	}

	first := pending[0]
	entry, ok := lookup(first.Name)
	if !ok || entry.group == 0 {
		return pending[:1], pending[1:]
	}

	i := 1
	for i < len(pending) {
		e, ok := lookup(pending[i].Name)
		if !ok || e.group != entry.group {
			break
		}
		i++
	}
	return pending[:i], pending[i:]
}
