package imap

// validStates is the set of connection states in which a command may
// be accepted; checked before the command is even dispatched to its
// handler.
type validStates struct {
	notAuthenticated bool
	authenticated    bool
	selected         bool
}

func (v validStates) allows(s State) bool {
	switch s {
	case NotAuthenticated:
		return v.notAuthenticated
	case Authenticated:
		return v.authenticated
	case Selected:
		return v.selected
	default:
		return false
	}
}

// registryEntry describes one command's legality and concurrency
// group, per the component design's registry table.
type registryEntry struct {
	states  validStates
	group   int // 0 = never runs concurrently with anything else
	reserve bool // reserves the input stream once Blocked->Executing
}

var registry = map[Name]registryEntry{
	CmdCapability:   {states: validStates{true, true, true}, group: 0},
	CmdNoop:         {states: validStates{true, true, true}, group: 0},
	CmdLogout:       {states: validStates{true, true, true}, group: 0},
	CmdID:           {states: validStates{true, true, true}, group: 0},
	CmdAuthenticate: {states: validStates{notAuthenticated: true}, group: 0, reserve: true},
	CmdLogin:        {states: validStates{notAuthenticated: true}, group: 0, reserve: true},
	CmdStarttls:     {states: validStates{notAuthenticated: true}, group: 0, reserve: true},
	CmdCompress:     {states: validStates{true, true, true}, group: 0, reserve: true},

	CmdSelect:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdExamine:     {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdCreate:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdDelete:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdRename:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdSubscribe:   {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdUnsubscribe: {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdList:        {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdLsub:        {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdStatus:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdAppend:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdNamespace:   {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdGetacl:      {states: validStates{authenticated: true, selected: true}, group: 0},
	CmdSetacl:      {states: validStates{authenticated: true, selected: true}, group: 0},

	CmdCheck:    {states: validStates{selected: true}, group: 1},
	CmdClose:    {states: validStates{selected: true}, group: 1},
	CmdExpunge:  {states: validStates{selected: true}, group: 1},
	CmdSearch:   {states: validStates{selected: true}, group: 1},
	CmdFetch:    {states: validStates{selected: true}, group: 1},
	CmdStore:    {states: validStates{selected: true}, group: 1},
	CmdCopy:     {states: validStates{selected: true}, group: 1},
	CmdUnselect: {states: validStates{selected: true}, group: 1},
	CmdIdle:     {states: validStates{selected: true}, group: 2, reserve: true},
}

// lookup returns the registry entry for name, and whether it exists.
func lookup(name Name) (registryEntry, bool) {
	e, ok := registry[name]
	return e, ok
}
