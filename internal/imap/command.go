package imap

// State is the connection's position in the IMAP4rev1 state machine.
type State int

const (
	NotAuthenticated State = iota
	Authenticated
	Selected
	Logout
)

func (s State) String() string {
	switch s {
	case NotAuthenticated:
		return "not authenticated"
	case Authenticated:
		return "authenticated"
	case Selected:
		return "selected"
	case Logout:
		return "logout"
	default:
		return "unknown"
	}
}

// CommandState is the lifecycle stage of one parsed command within a
// connection's pending-command queue.
type CommandState int

const (
	Unparsed CommandState = iota
	Blocked
	Executing
	Finished
	Retired
)

// Name identifies an IMAP command verb. UID-prefixed variants (UID
// FETCH, UID STORE, UID COPY, UID SEARCH, UID EXPUNGE) are represented
// by the underlying command Name with ParsedCommand.UID set to true.
type Name string

const (
	CmdCapability   Name = "CAPABILITY"
	CmdNoop         Name = "NOOP"
	CmdLogout       Name = "LOGOUT"
	CmdID           Name = "ID"
	CmdAuthenticate Name = "AUTHENTICATE"
	CmdLogin        Name = "LOGIN"
	CmdStarttls     Name = "STARTTLS"
	CmdCompress     Name = "COMPRESS"
	CmdSelect       Name = "SELECT"
	CmdExamine      Name = "EXAMINE"
	CmdCreate       Name = "CREATE"
	CmdDelete       Name = "DELETE"
	CmdRename       Name = "RENAME"
	CmdSubscribe    Name = "SUBSCRIBE"
	CmdUnsubscribe  Name = "UNSUBSCRIBE"
	CmdList         Name = "LIST"
	CmdLsub         Name = "LSUB"
	CmdStatus       Name = "STATUS"
	CmdAppend       Name = "APPEND"
	CmdNamespace    Name = "NAMESPACE"
	CmdGetacl       Name = "GETACL"
	CmdSetacl       Name = "SETACL"
	CmdCheck        Name = "CHECK"
	CmdClose        Name = "CLOSE"
	CmdUnselect     Name = "UNSELECT"
	CmdExpunge      Name = "EXPUNGE"
	CmdSearch       Name = "SEARCH"
	CmdFetch        Name = "FETCH"
	CmdStore        Name = "STORE"
	CmdCopy         Name = "COPY"
	CmdIdle         Name = "IDLE"
)

// ParsedCommand is the result of running the grammar parser over one
// complete command byte-image.
type ParsedCommand struct {
	Tag     string
	Name    Name
	UID     bool // true for the "UID FETCH"/"UID STORE"/... form
	Args    Args
	State   CommandState
	GroupID int

	// Untagged is filled in by handlers as untagged responses are
	// produced, in emission order, before the tagged response is sent.
	Untagged []string
}

// Args is the typed argument payload for a ParsedCommand. Which fields
// are meaningful depends on Name; handlers know which to read.
type Args struct {
	Mailbox        string
	NewMailbox     string // RENAME target, COPY/APPEND destination
	ReferenceName  string // LIST/LSUB reference
	MailboxPattern string // LIST/LSUB pattern
	Sequence       SequenceSet
	Attributes     []string  // FETCH attribute names, STATUS items
	FetchMacro     string    // ALL / FAST / FULL shorthand, if used
	StoreOp        StoreOp   // +FLAGS / -FLAGS / FLAGS
	StoreSilent    bool
	Flags          []string
	UnchangedSince int64 // CONDSTORE UNCHANGEDSINCE, -1 if absent
	SearchQuery    *SearchNode
	AuthMechanism  string
	Username       string
	Password       string
	InitialResp    []byte
	MessageLiteral []byte // APPEND message body
	InternalDate   string
	IDParams       map[string]string
	Raw            []byte
}

// StoreOp distinguishes STORE's three flag-mutation modes.
type StoreOp int

const (
	StoreSet StoreOp = iota
	StoreAdd
	StoreRemove
)
