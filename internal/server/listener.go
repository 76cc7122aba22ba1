package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/archiveopteryx/imapd/internal/config"
)

// ListenerConfig defines the settings a single Listener is built from.
type ListenerConfig struct {
	Address string
	Mode    config.ListenerMode
	// TLSConfig is required when Mode is config.ModeIMAPS, and is also
	// handed to accepted connections so they can later service STARTTLS.
	TLSConfig      *tls.Config
	PreAuthTimeout time.Duration
	CommandTimeout time.Duration
	Limiter        *ConnectionLimiter
	Logger         *slog.Logger
	Handler        ConnectionHandler
}

// Listener accepts connections on one socket and hands each to the
// configured ConnectionHandler in its own goroutine.
type Listener struct {
	cfg ListenerConfig

	mu sync.Mutex
	ln net.Listener
}

// NewListener builds a Listener from cfg. The socket is not opened until
// Start is called.
func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{cfg: cfg}
}

// Address returns the configured listen address.
func (l *Listener) Address() string {
	return l.cfg.Address
}

// Addr returns the actual bound address once Start has opened the socket,
// or nil beforehand. Useful for logging the resolved port when Address
// used ":0".
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start opens the listening socket and accepts connections until ctx is
// canceled or Close is called. It blocks until the accept loop exits.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return err
	}

	if l.cfg.Mode == config.ModeIMAPS {
		ln = tls.NewListener(ln, l.cfg.TLSConfig)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	logger := l.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("listener", l.cfg.Address), slog.String("mode", string(l.cfg.Mode)))
	logger.Info("listener started")

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if isClosedListenerErr(err) {
				return nil
			}
			logger.Error("accept failed", slog.String("error", err.Error()))
			return err
		}

		if l.cfg.Limiter != nil && !l.cfg.Limiter.TryAcquire() {
			logger.Warn("connection limit reached, rejecting connection",
				slog.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		wg.Add(1)
		go func(raw net.Conn) {
			defer wg.Done()
			if l.cfg.Limiter != nil {
				defer l.cfg.Limiter.Release()
			}
			defer raw.Close()

			c := NewConnection(raw, ConnectionConfig{
				TLSConfig:      l.cfg.TLSConfig,
				IsTLS:          l.cfg.Mode == config.ModeIMAPS,
				CommandTimeout: l.cfg.CommandTimeout,
				IdleTimeout:    l.cfg.PreAuthTimeout,
				Logger:         logger,
			})
			l.cfg.Handler(ctx, c)
		}(conn)
	}
}

// Close stops accepting new connections. Connections already handed to the
// handler are left to their own lifecycle.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func isClosedListenerErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
