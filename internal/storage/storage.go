// Package storage defines the contract the IMAP engine uses to reach
// the mail store: message metadata/body retrieval, flag mutation,
// search, append, mailbox hierarchy management and change
// notification. The engine never assumes a particular storage
// technology; internal/memstore provides an in-memory Backend for
// tests and small deployments.
package storage

import (
	"context"
	"io"
	"time"
)

// MessageAttrs is the metadata the engine needs about one message; a
// Fetch caller asks for a subset via AttributeSet and may receive only
// those fields populated.
type MessageAttrs struct {
	UID          uint32
	Flags        []string
	ModSeq       uint64
	InternalDate time.Time
	Size         int64
	Envelope     string // pre-rendered ENVELOPE structure text
	BodyStructure string // pre-rendered BODYSTRUCTURE text
	Header       []byte
	Body         []byte
}

// AttributeSet names which MessageAttrs fields a Fetch call should
// populate; the zero value requests UID and Flags only.
type AttributeSet struct {
	Flags         bool
	Envelope      bool
	BodyStructure bool
	Header        bool
	Body          bool
	BodySection   string // raw BODY[section] spec, empty if not requested
}

// FetchResult is one message's attributes as produced by a Fetch
// stream.
type FetchResult struct {
	Attrs MessageAttrs
	Err   error
}

// FlagOp identifies how ModifyFlags should combine NewFlags with the
// message's existing flag set.
type FlagOp int

const (
	FlagOpSet FlagOp = iota
	FlagOpAdd
	FlagOpRemove
)

// FlagModification is the outcome of one ModifyFlags call.
type FlagModification struct {
	ModifiedUIDs   []uint32
	ConflictedUIDs []uint32 // skipped due to UnchangedSince
}

// ChangeKind identifies the variety of ChangeEvent.
type ChangeKind int

const (
	ChangeNewMessage ChangeKind = iota
	ChangeFlagsUpdated
	ChangeExpunged
	ChangeMailboxDeleted
)

// ChangeEvent is one asynchronous notification of a mailbox mutation,
// delivered to every Session subscribed to that mailbox.
type ChangeEvent struct {
	Kind   ChangeKind
	UID    uint32
	Flags  []string
	ModSeq uint64
}

// MailboxInfo is one entry in a List/Lsub traversal result.
type MailboxInfo struct {
	Name        string
	Delimiter   byte
	NoSelect    bool
	HasChildren bool
	NoInferiors bool
	Subscribed  bool
}

// MailboxStatus is the snapshot STATUS and SELECT/EXAMINE read from
// the backend.
type MailboxStatus struct {
	UIDValidity uint32
	UIDNext     uint32
	Exists      uint32
	Recent      uint32
	Unseen      uint32
	HighestModSeq uint64
	PermanentFlags []string
	Flags          []string
}

// SearchQuery is implementation-defined; the engine passes its parsed
// criterion tree and leaves evaluation delegation to the backend (the
// memstore implementation evaluates it directly against in-memory
// messages).
type SearchQuery interface{}

// Backend is the storage engine's IMAP-facing contract (spec component
// H). All methods are safe for concurrent use across connections; the
// backend is responsible for any locking or transactional ordering its
// storage technology needs.
type Backend interface {
	// Status returns the mailbox's current counters, used by SELECT,
	// EXAMINE and STATUS.
	Status(ctx context.Context, mailbox string) (MailboxStatus, error)

	// Fetch streams attributes for the UIDs in uids, in the attribute
	// set requested. The returned channel is closed when the fetch
	// completes or ctx is canceled.
	Fetch(ctx context.Context, mailbox string, uids []uint32, attrs AttributeSet) (<-chan FetchResult, error)

	// ModifyFlags applies op with newFlags to every UID in uids. If
	// unchangedSince is non-negative, UIDs whose per-message ModSeq
	// exceeds it are skipped and reported as conflicted.
	ModifyFlags(ctx context.Context, mailbox string, uids []uint32, op FlagOp, newFlags []string, unchangedSince int64) (FlagModification, error)

	// Subscribe returns a channel of change events for mailbox; the
	// channel is closed when ctx is canceled or Unsubscribe-equivalent
	// cleanup runs.
	Subscribe(ctx context.Context, mailbox string) (<-chan ChangeEvent, error)

	// Search evaluates query against mailbox's current messages and
	// returns matching UIDs in ascending order.
	Search(ctx context.Context, mailbox string, query SearchQuery) ([]uint32, error)

	// Append stores a new message and returns its assigned UID.
	Append(ctx context.Context, mailbox string, body io.Reader, flags []string, internalDate time.Time) (uid uint32, err error)

	// Copy duplicates the messages named by uids from src into dst,
	// returning the destination UIDs in the same order as uids.
	Copy(ctx context.Context, src, dst string, uids []uint32) ([]uint32, error)

	// Expunge permanently removes every message flagged \Deleted in
	// mailbox and returns their UIDs in descending order.
	Expunge(ctx context.Context, mailbox string) ([]uint32, error)

	// Create, Delete and Rename manage the mailbox hierarchy.
	Create(ctx context.Context, mailbox string) error
	Delete(ctx context.Context, mailbox string) error
	Rename(ctx context.Context, from, to string) error

	// Subscription management for LIST/LSUB's \Subscribed attribute.
	SetSubscribed(ctx context.Context, mailbox string, subscribed bool) error

	// List traverses the hierarchy under reference, matching pattern
	// (which may contain "%" and "*" wildcards), restricted to
	// subscribed mailboxes when subscribedOnly is set (LSUB).
	List(ctx context.Context, reference, pattern string, subscribedOnly bool) ([]MailboxInfo, error)
}
