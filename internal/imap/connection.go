package imap

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/config"
	"github.com/archiveopteryx/imapd/internal/metrics"
	"github.com/archiveopteryx/imapd/internal/server"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// maxBytesBeforeAuth is the cumulative-bytes-before-login guard from
// the original implementation, distinct from the per-line cap enforced
// by the Framer.
const maxBytesBeforeAuth = 32768

// Connection is the IMAP-level state machine layered over a
// transport-level server.Connection: NotAuthenticated → Authenticated
// → Selected → Logout, with STARTTLS/COMPRESS interposition, IDLE
// sub-mode, and the pending-command queue's group-aware dispatch.
type Connection struct {
	raw    *server.Connection
	cfg    *config.Config
	disp   *Dispatcher
	stback storage.Backend
	auth   authbackend.Backend
	mtr    metrics.Collector
	logger *slog.Logger

	framer  *Framer
	emitter *Emitter

	mu sync.Mutex

	State   State
	User    *authbackend.User
	Session *Session

	idling       bool
	bytesArrived int

	pending []*ParsedCommand
}

// ConnectionDeps bundles the collaborators a Connection needs beyond
// the raw transport.
type ConnectionDeps struct {
	Config     *config.Config
	Dispatcher *Dispatcher
	Storage    storage.Backend
	Auth       authbackend.Backend
	Metrics    metrics.Collector
	Logger     *slog.Logger
}

// NewConnection wraps raw in an IMAP connection state machine.
func NewConnection(raw *server.Connection, deps ConnectionDeps) *Connection {
	logger := deps.Logger
	if logger == nil {
		logger = raw.Logger()
	}
	return &Connection{
		raw:     raw,
		cfg:     deps.Config,
		disp:    deps.Dispatcher,
		stback:  deps.Storage,
		auth:    deps.Auth,
		mtr:     deps.Metrics,
		logger:  logger,
		framer:  NewFramer(raw.Reader()),
		emitter: NewEmitter(raw.Writer()),
		State:   NotAuthenticated,
	}
}

// Capabilities returns the advertised capability list for the
// connection's current state and configuration (spec §6). The auth
// toggles and the allow-plaintext-passwords policy decide only what is
// listed here; LOGIN and AUTHENTICATE do not consult them.
func (c *Connection) Capabilities() []string {
	caps := []string{"IMAP4rev1"}

	auth := c.cfg.Auth
	plaintextOK := auth.AllowPlaintextPasswords == "always" ||
		(auth.AllowPlaintextPasswords == "if-tls" && c.raw.IsTLS())

	if auth.Plain && plaintextOK {
		caps = append(caps, "AUTH=PLAIN")
	}
	if auth.CramMD5 {
		caps = append(caps, "AUTH=CRAM-MD5")
	}
	if auth.DigestMD5 {
		caps = append(caps, "AUTH=DIGEST-MD5")
	}
	if auth.Anonymous {
		caps = append(caps, "AUTH=ANONYMOUS")
	}

	if !c.raw.IsTLS() {
		caps = append(caps, "STARTTLS")
		if !plaintextOK {
			caps = append(caps, "LOGINDISABLED")
		}
	}

	caps = append(caps,
		"LITERAL+", "IDLE", "ID", "NAMESPACE", "UIDPLUS", "UNSELECT",
		"CHILDREN", "BINARY", "CATENATE", "CONDSTORE", "URLAUTH",
		"ACL", "RIGHTS=ekntx", "COMPRESS=DEFLATE",
	)
	return caps
}

// Banner returns the initial greeting line's payload (without the
// leading "* OK " and trailing CRLF, which Emitter adds).
func (c *Connection) Banner() string {
	return "[CAPABILITY " + strings.Join(c.Capabilities(), " ") + "] " +
		c.cfg.Hostname + " " + c.cfg.ServerName + " ready"
}

// Run drives the connection's full lifecycle: banner, then read-parse-
// dispatch until Logout or a fatal error. It returns when the
// connection should be closed by the caller (the listener's
// per-connection goroutine).
func (c *Connection) Run(ctx context.Context) {
	if err := c.emitter.Untagged("OK", c.Banner()); err != nil {
		return
	}
	if err := c.raw.Flush(); err != nil {
		return
	}
	if c.mtr != nil {
		c.mtr.ConnectionOpened()
		defer c.mtr.ConnectionClosed()
	}

	c.applyTimeoutForState()

	for {
		if c.State == Logout {
			return
		}

		if err := c.raw.ResetIdleTimeout(); err != nil {
			return
		}

		image, err := c.framer.Next()
		if pc, ok := err.(*PendingContinuation); ok {
			if werr := c.emitter.Continuation(strings.TrimSuffix(strings.TrimPrefix(pc.Text, "+ "), "\r\n")); werr != nil {
				return
			}
			if werr := c.raw.Flush(); werr != nil {
				return
			}
			continue
		}
		if err == ErrLineTooLong {
			_ = c.emitter.Bye("line too long")
			_ = c.raw.Flush()
			return
		}
		if err != nil {
			return
		}

		c.bytesArrived += len(image)
		if c.bytesArrived > maxBytesBeforeAuth && c.State == NotAuthenticated {
			c.logger.Warn("overlong login sequence")
			_ = c.emitter.Bye("overlong login sequence")
			_ = c.raw.Flush()
			return
		}

		cmd, perr := Parse(image)
		if perr != nil {
			c.handleParseError(perr)
			if werr := c.raw.Flush(); werr != nil {
				return
			}
			continue
		}

		if c.mtr != nil {
			c.mtr.CommandProcessed(string(cmd.Name))
		}

		c.pending = append(c.pending, cmd)
		c.runReady(ctx)

		if err := c.raw.Flush(); err != nil {
			return
		}

		if c.State == Logout {
			return
		}
	}
}

func (c *Connection) handleParseError(err error) {
	tag := "*"
	if ue, ok := err.(*ErrUnknownCommand); ok {
		if ue.Tag != "" {
			tag = ue.Tag
		}
		_ = c.emitter.Tagged(tag, BAD, "", "No such command: "+ue.Name)
		return
	}
	_ = c.emitter.Tagged(tag, BAD, "", "Parse error: "+err.Error())
}

// runReady drains the pending queue in group-respecting batches,
// running each batch (a single group-0 command, or a run of same-group
// nonzero commands) to completion before starting the next.
func (c *Connection) runReady(ctx context.Context) {
	for len(c.pending) > 0 {
		var batch []*ParsedCommand
		batch, c.pending = nextBatch(c.pending)
		c.runBatch(ctx, batch)

		if c.State == Logout {
			return
		}
		if c.Session != nil {
			c.flushExpungeNotifications()
		}
	}
}

// runBatch executes every command in batch, concurrently when there is
// more than one (same nonzero group), and emits each command's
// untagged lines and tagged response in queue order once the whole
// batch has completed.
func (c *Connection) runBatch(ctx context.Context, batch []*ParsedCommand) {
	hc := &HandlerContext{Conn: c, Storage: c.stback, Auth: c.auth, Metrics: c.mtr, Logger: c.logger}
	results := make([]*Result, len(batch))

	if len(batch) == 1 {
		results[0] = c.disp.Dispatch(ctx, hc, batch[0])
	} else {
		var wg sync.WaitGroup
		for i, cmd := range batch {
			wg.Add(1)
			go func(i int, cmd *ParsedCommand) {
				defer wg.Done()
				results[i] = c.disp.Dispatch(ctx, hc, cmd)
			}(i, cmd)
		}
		wg.Wait()
	}

	for i, cmd := range batch {
		for _, line := range cmd.Untagged {
			_ = c.emitter.UntaggedLine(line)
		}
		res := results[i]
		if res.StateChange != nil {
			c.State = *res.StateChange
			c.applyTimeoutForState()
		}
		if !res.TaggedAlreadySent {
			_ = c.emitter.Tagged(cmd.Tag, res.Cond, res.RespCode, res.Text)
		}
		if res.CloseConnection {
			c.State = Logout
		}
	}
}

// flushExpungeNotifications emits untagged EXPUNGE for anything the
// active Session has staged, between commands only (spec §4.E).
func (c *Connection) flushExpungeNotifications() {
	for _, msn := range c.Session.FlushExpunge() {
		_ = c.emitter.UntaggedLine(itoa(msn) + " EXPUNGE")
	}
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// applyTimeoutForState sets the connection's idle-timeout duration to
// match the three-tier schedule for the current state (spec §4.D,
// concrete defaults from SPEC_FULL §5).
func (c *Connection) applyTimeoutForState() {
	switch {
	case c.idling:
		c.raw.SetIdleTimeout(c.cfg.Timeouts.IdleTimeout())
	case c.State == NotAuthenticated:
		c.raw.SetIdleTimeout(c.cfg.Timeouts.PreAuthTimeout())
	default:
		c.raw.SetIdleTimeout(c.cfg.Timeouts.AuthenticatedTimeout())
	}
}

// SetIdling toggles IDLE sub-mode and re-applies the idle-timeout
// schedule; called by the IDLE handler.
func (c *Connection) SetIdling(idling bool) {
	c.idling = idling
	c.applyTimeoutForState()
}

// Raw exposes the underlying transport connection for handlers that
// need it directly (STARTTLS, COMPRESS, IDLE's blocking read for
// DONE).
func (c *Connection) Raw() *server.Connection { return c.raw }

// RebindIO rebuilds the framer and emitter around the transport's
// current reader/writer. It must be called immediately after a
// successful UpgradeToTLS or UpgradeToDeflate, since interposition
// replaces the underlying bufio.Reader/Writer the framer and emitter
// were originally built from.
func (c *Connection) RebindIO() {
	c.framer = NewFramer(c.raw.Reader())
	c.emitter = NewEmitter(c.raw.Writer())
}

// Emitter exposes the response emitter for handlers that stream
// untagged output incrementally (FETCH, SEARCH, LIST) rather than via
// cmd.Untagged.
func (c *Connection) Emitter() *Emitter { return c.emitter }

// BufferedReader exposes the raw buffered reader, used by IDLE to wait
// for the literal bytes "DONE\r\n" without going through the command
// framer.
func (c *Connection) BufferedReader() *bufio.Reader { return c.raw.Reader() }
