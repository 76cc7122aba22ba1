package server

import (
	"bufio"
	"compress/flate"
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionHandler processes a single accepted connection. It is called
// in its own goroutine and owns the connection until it returns; returning
// closes the underlying socket.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// ConnectionConfig holds the settings a Connection is built with.
type ConnectionConfig struct {
	// TLSConfig is used by UpgradeToTLS (STARTTLS) and must already be set
	// on an imaps-mode listener before the Connection is handed to its
	// handler.
	TLSConfig *tls.Config
	// IsTLS indicates the raw connection is already using TLS, e.g. an
	// imaps-mode listener that wrapped the socket before calling
	// NewConnection.
	IsTLS bool
	// CommandTimeout bounds how long a single command line read may take.
	CommandTimeout time.Duration
	// IdleTimeout is the initial read-deadline duration applied between
	// commands; SetIdleTimeout changes it as the connection moves through
	// the pre-authentication / authenticated / IDLE timeout schedule.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Connection wraps a single accepted socket with the buffering, timeout,
// and byte-stream interposition (STARTTLS, COMPRESS=DEFLATE) behavior the
// IMAP engine needs. It never interprets IMAP syntax itself.
type Connection struct {
	mu     sync.Mutex
	raw    net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	flateWriter *flate.Writer

	tlsConfig *tls.Config
	isTLS     bool
	deflated  bool

	commandTimeout time.Duration
	idleTimeout    time.Duration

	logger *slog.Logger
	closed atomic.Bool
}

// NewConnection builds a Connection around an already-accepted net.Conn.
func NewConnection(conn net.Conn, cfg ConnectionConfig) *Connection {
	c := &Connection{
		raw:            conn,
		tlsConfig:      cfg.TLSConfig,
		isTLS:          cfg.IsTLS,
		commandTimeout: cfg.CommandTimeout,
		idleTimeout:    cfg.IdleTimeout,
		logger:         cfg.Logger,
	}
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)
	return c
}

// Reader returns the buffered reader positioned on the current byte stream
// (plaintext, TLS, or DEFLATE-decompressed, depending on interposition).
func (c *Connection) Reader() *bufio.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

// Writer returns the buffered writer for the current byte stream.
func (c *Connection) Writer() *bufio.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer
}

// Flush flushes any buffered output, including a pending DEFLATE sync
// point so each response actually reaches the peer.
func (c *Connection) Flush() error {
	c.mu.Lock()
	w := c.writer
	fw := c.flateWriter
	c.mu.Unlock()

	if err := w.Flush(); err != nil {
		return err
	}
	if fw != nil {
		return fw.Flush()
	}
	return nil
}

// SetCommandTimeout applies the command-execution read deadline: the bound
// on how long a single line (or literal) may take to arrive.
func (c *Connection) SetCommandTimeout() error {
	return c.raw.SetReadDeadline(time.Now().Add(c.commandTimeout))
}

// ResetIdleTimeout applies the current idle read deadline. The IMAP
// connection state machine calls SetIdleTimeout as it moves between the
// pre-authentication, authenticated, and IDLE timeout budgets.
func (c *Connection) ResetIdleTimeout() error {
	c.mu.Lock()
	d := c.idleTimeout
	c.mu.Unlock()
	return c.raw.SetReadDeadline(time.Now().Add(d))
}

// SetIdleTimeout changes the duration ResetIdleTimeout applies on its next
// call, without touching the connection's current deadline.
func (c *Connection) SetIdleTimeout(d time.Duration) {
	c.mu.Lock()
	c.idleTimeout = d
	c.mu.Unlock()
}

// IsClosed reports whether Close has been called on this connection.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// IsTLS reports whether the byte stream is currently running over TLS.
func (c *Connection) IsTLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isTLS
}

// RemoteAddr returns the peer address of the underlying socket.
func (c *Connection) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Logger returns the logger attached to this connection.
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// UpgradeToTLS interposes a TLS server handshake on the connection's byte
// stream, in place, after a STARTTLS response has already been written and
// flushed and before any further bytes are read. No byte read after the OK
// response may cross the plaintext/ciphertext boundary: the caller must
// not have buffered ahead past the STARTTLS command line.
func (c *Connection) UpgradeToTLS(tlsConfig *tls.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTLS {
		return ErrAlreadyTLS
	}
	if tlsConfig == nil {
		tlsConfig = c.tlsConfig
	}

	tlsConn := tls.Server(c.raw, tlsConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return err
	}

	c.raw = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)
	c.isTLS = true
	return nil
}

// UpgradeToDeflate interposes a raw DEFLATE compressor/decompressor on the
// connection's byte stream, the same interposition pattern as
// UpgradeToTLS applied to a different transform, for the COMPRESS=DEFLATE
// extension.
func (c *Connection) UpgradeToDeflate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deflated {
		return ErrAlreadyDeflated
	}

	fw, err := flate.NewWriter(c.raw, flate.DefaultCompression)
	if err != nil {
		return err
	}

	c.reader = bufio.NewReader(flate.NewReader(c.raw))
	c.writer = bufio.NewWriter(fw)
	c.flateWriter = fw
	c.deflated = true
	return nil
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.raw.Close()
}
