package handlers

import (
	"net"
	"testing"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/config"
	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/memstore"
	"github.com/archiveopteryx/imapd/internal/metrics"
	"github.com/archiveopteryx/imapd/internal/server"
)

// testHarness wires a real imap.Connection over a net.Pipe so handlers
// can be exercised the way the dispatcher exercises them, without a
// live socket.
type testHarness struct {
	client net.Conn
	conn   *imap.Connection
	store  *memstore.Store
	auth   *authbackend.MemoryBackend
	hc     *imap.HandlerContext
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close() })

	rawConn := server.NewConnection(srv, server.ConnectionConfig{})

	cfg := config.Default()
	store := memstore.New()
	auth := authbackend.NewMemoryBackend()
	if err := auth.AddUser("alice", "hunter2", 1, "INBOX", authbackend.Rights{
		authbackend.RightLookup: true, authbackend.RightRead: true, authbackend.RightWrite: true,
		authbackend.RightInsert: true, authbackend.RightExpunge: true, authbackend.RightDeleteMailbox: true,
		authbackend.RightCreateMailbox: true,
	}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	conn := imap.NewConnection(rawConn, imap.ConnectionDeps{
		Config:  &cfg,
		Storage: store,
		Auth:    auth,
		Metrics: &metrics.NoopCollector{},
		Logger:  rawConn.Logger(),
	})
	user, err := auth.ResolveLogin(nil, "alice") //nolint:staticcheck // context not needed for a map lookup
	if err != nil {
		t.Fatalf("ResolveLogin: %v", err)
	}
	conn.User = &user

	return &testHarness{
		client: client,
		conn:   conn,
		store:  store,
		auth:   auth,
		hc: &imap.HandlerContext{
			Conn:    conn,
			Storage: store,
			Auth:    auth,
			Metrics: &metrics.NoopCollector{},
			Logger:  rawConn.Logger(),
		},
	}
}
