package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/archiveopteryx/imapd/internal/config"
)

func TestListenerAcceptsAndDispatches(t *testing.T) {
	received := make(chan string, 1)

	l := NewListener(ListenerConfig{
		Address:        "127.0.0.1:0",
		Mode:           config.ModeIMAP,
		CommandTimeout: time.Second,
		PreAuthTimeout: time.Second,
		Handler: func(ctx context.Context, conn *Connection) {
			line, err := conn.Reader().ReadString('\n')
			if err != nil {
				return
			}
			received <- line
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startErr := make(chan error, 1)
	go func() {
		startErr <- l.Start(ctx)
	}()

	var addr net.Addr
	for i := 0; i < 100; i++ {
		if addr = l.Addr(); addr != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("listener never bound a socket")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("a1 NOOP\r\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case line := <-received:
		if line != "a1 NOOP\r\n" {
			t.Errorf("received %q, want %q", line, "a1 NOOP\r\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to receive the line")
	}

	cancel()
}

func TestListenerClose(t *testing.T) {
	l := NewListener(ListenerConfig{
		Address: "127.0.0.1:0",
		Mode:    config.ModeIMAP,
		Handler: func(ctx context.Context, conn *Connection) {},
	})

	// Closing before Start should be a safe no-op.
	if err := l.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}
