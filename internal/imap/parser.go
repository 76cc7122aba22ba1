package imap

import (
	"strconv"
	"strings"
)

// knownCommands maps the uppercased command word to its canonical Name.
// Unknown words make Parse return *ErrUnknownCommand, which the
// connection turns into a tagged BAD response.
var knownCommands = map[string]Name{
	"CAPABILITY":   CmdCapability,
	"NOOP":         CmdNoop,
	"LOGOUT":       CmdLogout,
	"ID":           CmdID,
	"AUTHENTICATE": CmdAuthenticate,
	"LOGIN":        CmdLogin,
	"STARTTLS":     CmdStarttls,
	"COMPRESS":     CmdCompress,
	"SELECT":       CmdSelect,
	"EXAMINE":      CmdExamine,
	"CREATE":       CmdCreate,
	"DELETE":       CmdDelete,
	"RENAME":       CmdRename,
	"SUBSCRIBE":    CmdSubscribe,
	"UNSUBSCRIBE":  CmdUnsubscribe,
	"LIST":         CmdList,
	"LSUB":         CmdLsub,
	"STATUS":       CmdStatus,
	"APPEND":       CmdAppend,
	"NAMESPACE":    CmdNamespace,
	"GETACL":       CmdGetacl,
	"SETACL":       CmdSetacl,
	"CHECK":        CmdCheck,
	"CLOSE":        CmdClose,
	"UNSELECT":     CmdUnselect,
	"EXPUNGE":      CmdExpunge,
	"SEARCH":       CmdSearch,
	"FETCH":        CmdFetch,
	"STORE":        CmdStore,
	"COPY":         CmdCopy,
	"IDLE":         CmdIdle,
}

// ErrUnknownCommand is returned by Parse when the command word after
// the tag does not name a known IMAP command.
type ErrUnknownCommand struct {
	Tag  string
	Name string
}

func (e *ErrUnknownCommand) Error() string {
	return "no such command: " + e.Name
}

// Parse runs the recursive-descent grammar over one complete command
// byte-image (as produced by Framer.Next) and returns a ParsedCommand.
// A *ParseError or *ErrUnknownCommand signals that only a tagged BAD
// can be produced; the connection remains usable. Parse never mutates
// any state outside the returned value.
func Parse(image []byte) (*ParsedCommand, error) {
	s := newScanner(image)

	tag, err := s.tag()
	if err != nil {
		return nil, err
	}
	if err := s.skipSP(); err != nil {
		return nil, err
	}

	word, err := s.atom()
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(word)

	uid := false
	if upper == "UID" {
		uid = true
		if err := s.skipSP(); err != nil {
			return nil, err
		}
		word, err = s.atom()
		if err != nil {
			return nil, err
		}
		upper = strings.ToUpper(word)
	}

	name, ok := knownCommands[upper]
	if !ok {
		return nil, &ErrUnknownCommand{Tag: tag, Name: word}
	}
	if uid && !uidCapable(name) {
		return nil, &ErrUnknownCommand{Tag: tag, Name: "UID " + word}
	}

	cmd := &ParsedCommand{Tag: tag, Name: name, UID: uid, State: Unparsed}
	cmd.Args.UnchangedSince = -1
	cmd.Args.Raw = image

	if err := parseArgs(s, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func uidCapable(n Name) bool {
	switch n {
	case CmdFetch, CmdStore, CmdCopy, CmdSearch, CmdExpunge:
		return true
	}
	return false
}

// parseArgs dispatches to the per-command argument grammar. Commands
// with no arguments return at once; anything after the command word is
// not examined.
func parseArgs(s *scanner, cmd *ParsedCommand) error {
	switch cmd.Name {
	case CmdCapability, CmdNoop, CmdLogout, CmdStarttls, CmdCheck, CmdClose,
		CmdUnselect, CmdExpunge, CmdNamespace:
		return nil

	case CmdID:
		return parseID(s, cmd)

	case CmdCompress:
		if err := s.skipSP(); err != nil {
			return err
		}
		mech, err := s.atom()
		if err != nil {
			return err
		}
		cmd.Args.AuthMechanism = strings.ToUpper(mech)
		return nil

	case CmdAuthenticate:
		if err := s.skipSP(); err != nil {
			return err
		}
		mech, err := s.atom()
		if err != nil {
			return err
		}
		cmd.Args.AuthMechanism = strings.ToUpper(mech)
		s.skipOptionalSP()
		if !s.eof() {
			cmd.Args.InitialResp = []byte(s.restOfLine())
		}
		return nil

	case CmdLogin:
		if err := s.skipSP(); err != nil {
			return err
		}
		user, err := s.astring()
		if err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
		pass, err := s.astring()
		if err != nil {
			return err
		}
		cmd.Args.Username = user
		cmd.Args.Password = pass
		return nil

	case CmdSelect, CmdExamine, CmdCreate, CmdDelete, CmdSubscribe, CmdUnsubscribe:
		if err := s.skipSP(); err != nil {
			return err
		}
		mbox, err := s.astring()
		if err != nil {
			return err
		}
		cmd.Args.Mailbox = mbox
		return nil

	case CmdRename:
		if err := s.skipSP(); err != nil {
			return err
		}
		from, err := s.astring()
		if err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
		to, err := s.astring()
		if err != nil {
			return err
		}
		cmd.Args.Mailbox = from
		cmd.Args.NewMailbox = to
		return nil

	case CmdList, CmdLsub:
		if err := s.skipSP(); err != nil {
			return err
		}
		ref, err := s.astring()
		if err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
		pattern, err := s.astring()
		if err != nil {
			return err
		}
		cmd.Args.ReferenceName = ref
		cmd.Args.MailboxPattern = pattern
		return nil

	case CmdStatus:
		return parseStatus(s, cmd)

	case CmdAppend:
		return parseAppend(s, cmd)

	case CmdGetacl:
		if err := s.skipSP(); err != nil {
			return err
		}
		mbox, err := s.astring()
		if err != nil {
			return err
		}
		cmd.Args.Mailbox = mbox
		return nil

	case CmdSetacl:
		if err := s.skipSP(); err != nil {
			return err
		}
		mbox, err := s.astring()
		if err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
		rest := s.restOfLine()
		cmd.Args.Mailbox = mbox
		cmd.Args.Raw = []byte(rest)
		return nil

	case CmdSearch:
		return parseSearch(s, cmd)

	case CmdFetch:
		return parseFetch(s, cmd)

	case CmdStore:
		return parseStore(s, cmd)

	case CmdCopy:
		return parseCopy(s, cmd)

	case CmdIdle:
		return nil

	default:
		return s.errorf("unsupported command argument grammar")
	}
}

func parseID(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	params := map[string]string{}
	if s.peek() == '(' {
		var key string
		haveKey := false
		err := s.parenList(func() error {
			if !haveKey {
				k, _, err := s.nstring()
				if err != nil {
					return err
				}
				key = strings.ToLower(k)
				haveKey = true
				return nil
			}
			v, isNil, err := s.nstring()
			if err != nil {
				return err
			}
			if !isNil {
				params[key] = v
			}
			haveKey = false
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if _, _, err := s.nstring(); err != nil {
			return err
		}
	}
	cmd.Args.IDParams = params
	return nil
}

func parseStatus(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	mbox, err := s.astring()
	if err != nil {
		return err
	}
	cmd.Args.Mailbox = mbox
	if err := s.skipSP(); err != nil {
		return err
	}
	var attrs []string
	err = s.parenList(func() error {
		a, err := s.atom()
		if err != nil {
			return err
		}
		attrs = append(attrs, strings.ToUpper(a))
		return nil
	})
	if err != nil {
		return err
	}
	cmd.Args.Attributes = attrs
	return nil
}

func parseAppend(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	mbox, err := s.astring()
	if err != nil {
		return err
	}
	cmd.Args.Mailbox = mbox

	if err := s.skipSP(); err != nil {
		return err
	}

	if s.peek() == '(' {
		var flags []string
		err := s.parenList(func() error {
			f, err := s.atom2(isFlagChar)
			if err != nil {
				return err
			}
			flags = append(flags, f)
			return nil
		})
		if err != nil {
			return err
		}
		cmd.Args.Flags = flags
		if err := s.skipSP(); err != nil {
			return err
		}
	}

	if s.peek() == '"' {
		date, err := s.quoted()
		if err != nil {
			return err
		}
		cmd.Args.InternalDate = date
		if err := s.skipSP(); err != nil {
			return err
		}
	}

	msg, err := s.astring()
	if err != nil {
		return err
	}
	cmd.Args.MessageLiteral = []byte(msg)
	return nil
}

func isFlagChar(b byte) bool {
	return !isAtomSpecial(b) || b == '\\'
}

// atom2 is atom() with a custom character predicate, used for flag
// atoms which permit a leading backslash (\Seen, \Deleted, ...).
func (s *scanner) atom2(allowed func(byte) bool) (string, error) {
	start := s.pos
	for !s.eof() && allowed(s.buf[s.pos]) && s.buf[s.pos] != ' ' && s.buf[s.pos] != ')' && s.buf[s.pos] != '(' {
		s.pos++
	}
	if s.pos == start {
		return "", s.errorf("expected flag atom")
	}
	return string(s.buf[start:s.pos]), nil
}

func parseSequenceToken(s *scanner) (SequenceSet, error) {
	start := s.pos
	for !s.eof() && s.buf[s.pos] != ' ' {
		s.pos++
	}
	if s.pos == start {
		return SequenceSet{}, s.errorf("expected sequence-set")
	}
	return ParseSequenceSet(string(s.buf[start:s.pos]))
}

func parseFetch(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	seq, err := parseSequenceToken(s)
	if err != nil {
		return err
	}
	cmd.Args.Sequence = seq
	if err := s.skipSP(); err != nil {
		return err
	}

	if s.peek() == '(' {
		var attrs []string
		err := s.parenList(func() error {
			a, err := s.atomFetchAttr()
			if err != nil {
				return err
			}
			attrs = append(attrs, a)
			return nil
		})
		if err != nil {
			return err
		}
		cmd.Args.Attributes = attrs
		return nil
	}

	a, err := s.atomFetchAttr()
	if err != nil {
		return err
	}
	switch strings.ToUpper(a) {
	case "ALL", "FAST", "FULL":
		cmd.Args.FetchMacro = strings.ToUpper(a)
	default:
		cmd.Args.Attributes = []string{a}
	}
	return nil
}

// atomFetchAttr scans a FETCH attribute, which may include a bracketed
// section spec such as BODY[HEADER.FIELDS (SUBJECT)] or BODY.PEEK[TEXT].
func (s *scanner) atomFetchAttr() (string, error) {
	start := s.pos
	for !s.eof() && !isAtomSpecial(s.buf[s.pos]) && s.buf[s.pos] != '[' {
		s.pos++
	}
	if s.pos == start {
		return "", s.errorf("expected fetch attribute")
	}
	if s.eof() || s.buf[s.pos] != '[' {
		return string(s.buf[start:s.pos]), nil
	}
	depth := 0
	for !s.eof() {
		switch s.buf[s.pos] {
		case '[':
			depth++
		case ']':
			depth--
			s.pos++
			if depth == 0 {
				if !s.eof() && s.buf[s.pos] == '<' {
					for !s.eof() && s.buf[s.pos] != '>' {
						s.pos++
					}
					if !s.eof() {
						s.pos++
					}
				}
				return string(s.buf[start:s.pos]), nil
			}
			continue
		}
		s.pos++
	}
	return "", s.errorf("unterminated fetch attribute section")
}

func parseStore(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	seq, err := parseSequenceToken(s)
	if err != nil {
		return err
	}
	cmd.Args.Sequence = seq
	if err := s.skipSP(); err != nil {
		return err
	}

	if s.peek() == '(' {
		save := s.pos
		s.pos++
		word, err := s.atom()
		if err == nil && strings.EqualFold(word, "UNCHANGEDSINCE") {
			if err := s.skipSP(); err != nil {
				return err
			}
			numTok, err := s.atom()
			if err != nil {
				return err
			}
			n, err := strconv.ParseInt(numTok, 10, 64)
			if err != nil {
				return s.errorf("invalid UNCHANGEDSINCE modseq")
			}
			if s.eof() || s.buf[s.pos] != ')' {
				return s.errorf("expected ) after UNCHANGEDSINCE")
			}
			s.pos++
			if err := s.skipSP(); err != nil {
				return err
			}
			cmd.Args.UnchangedSince = n
		} else {
			s.pos = save
		}
	}

	op, err := s.atom2(func(b byte) bool { return b == '+' || b == '-' || !isAtomSpecial(b) })
	if err != nil {
		return err
	}
	upper := strings.ToUpper(op)
	switch {
	case strings.HasPrefix(upper, "+FLAGS"):
		cmd.Args.StoreOp = StoreAdd
		cmd.Args.StoreSilent = strings.HasSuffix(upper, ".SILENT")
	case strings.HasPrefix(upper, "-FLAGS"):
		cmd.Args.StoreOp = StoreRemove
		cmd.Args.StoreSilent = strings.HasSuffix(upper, ".SILENT")
	case strings.HasPrefix(upper, "FLAGS"):
		cmd.Args.StoreOp = StoreSet
		cmd.Args.StoreSilent = strings.HasSuffix(upper, ".SILENT")
	default:
		return s.errorf("expected FLAGS/+FLAGS/-FLAGS")
	}

	if err := s.skipSP(); err != nil {
		return err
	}

	var flags []string
	if s.peek() == '(' {
		err := s.parenList(func() error {
			f, err := s.atom2(isFlagChar)
			if err != nil {
				return err
			}
			flags = append(flags, f)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		f, err := s.atom2(isFlagChar)
		if err != nil {
			return err
		}
		flags = append(flags, f)
	}
	cmd.Args.Flags = flags
	return nil
}

func remainderPeek(s *scanner, n int) []byte {
	end := s.pos + n
	if end > len(s.buf) {
		end = len(s.buf)
	}
	return s.buf[s.pos:end]
}

func parseCopy(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	seq, err := parseSequenceToken(s)
	if err != nil {
		return err
	}
	cmd.Args.Sequence = seq
	if err := s.skipSP(); err != nil {
		return err
	}
	mbox, err := s.astring()
	if err != nil {
		return err
	}
	cmd.Args.NewMailbox = mbox
	return nil
}

// parseSearch parses SEARCH's criterion list into a boolean tree. The
// grammar supported here covers the criteria named in the component
// design: ALL/ANSWERED/DELETED/.../UNSEEN flag tests, FROM/TO/SUBJECT/
// BODY/TEXT/HEADER substring tests, BEFORE/ON/SINCE date tests,
// LARGER/SMALLER size tests, UID/sequence-set tests, AND (implicit
// conjunction of a list), OR and NOT.
func parseSearch(s *scanner, cmd *ParsedCommand) error {
	if err := s.skipSP(); err != nil {
		return err
	}
	if strings.HasPrefix(strings.ToUpper(string(remainderPeek(s, 7))), "CHARSET") {
		if _, err := s.atom(); err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
		if _, err := s.atom(); err != nil {
			return err
		}
		if err := s.skipSP(); err != nil {
			return err
		}
	}

	var nodes []*SearchNode
	for {
		n, err := parseSearchKey(s)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
		if s.eof() || s.peek() != ' ' {
			break
		}
		s.pos++
	}

	if len(nodes) == 1 {
		cmd.Args.SearchQuery = nodes[0]
	} else {
		cmd.Args.SearchQuery = &SearchNode{Op: SearchAnd, Children: nodes}
	}
	return nil
}

func parseSearchKey(s *scanner) (*SearchNode, error) {
	if s.peek() == '(' {
		var nodes []*SearchNode
		err := s.parenList(func() error {
			n, err := parseSearchKey(s)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchAnd, Children: nodes}, nil
	}

	if s.peek() >= '0' && s.peek() <= '9' || s.peek() == '*' {
		seq, err := parseSequenceToken(s)
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchSequence, Seq: seq}, nil
	}

	word, err := s.atom()
	if err != nil {
		return nil, err
	}
	key := strings.ToUpper(word)

	switch key {
	case "ALL", "ANSWERED", "DELETED", "DRAFT", "FLAGGED", "NEW", "OLD",
		"RECENT", "SEEN", "UNANSWERED", "UNDELETED", "UNDRAFT",
		"UNFLAGGED", "UNSEEN":
		return &SearchNode{Op: flagSearchOp(key)}, nil

	case "NOT":
		s.skipOptionalSP()
		child, err := parseSearchKey(s)
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchNot, Children: []*SearchNode{child}}, nil

	case "OR":
		s.skipOptionalSP()
		a, err := parseSearchKey(s)
		if err != nil {
			return nil, err
		}
		if err := s.skipSP(); err != nil {
			return nil, err
		}
		b, err := parseSearchKey(s)
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchOr, Children: []*SearchNode{a, b}}, nil

	case "FROM", "TO", "CC", "BCC", "SUBJECT", "BODY", "TEXT", "KEYWORD", "UNKEYWORD":
		s.skipOptionalSP()
		val, err := s.astring()
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: strSearchOp(key), Str: val}, nil

	case "HEADER":
		s.skipOptionalSP()
		hkey, err := s.astring()
		if err != nil {
			return nil, err
		}
		if err := s.skipSP(); err != nil {
			return nil, err
		}
		val, err := s.astring()
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchHeader, HeaderKey: hkey, Str: val}, nil

	case "BEFORE", "ON", "SINCE", "SENTBEFORE", "SENTON", "SENTSINCE":
		s.skipOptionalSP()
		date, err := s.atom()
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: dateSearchOp(key), Date: date}, nil

	case "LARGER", "SMALLER":
		s.skipOptionalSP()
		numTok, err := s.atom()
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(numTok, 10, 64)
		if err != nil {
			return nil, s.errorf("invalid size in %s", key)
		}
		op := SearchLarger
		if key == "SMALLER" {
			op = SearchSmaller
		}
		return &SearchNode{Op: op, Number: n}, nil

	case "UID":
		s.skipOptionalSP()
		seq, err := parseSequenceToken(s)
		if err != nil {
			return nil, err
		}
		return &SearchNode{Op: SearchUID, Seq: seq}, nil

	default:
		return nil, s.errorf("unknown search key: %s", key)
	}
}

func flagSearchOp(key string) SearchOp {
	switch key {
	case "ALL":
		return SearchAll
	case "ANSWERED":
		return SearchAnswered
	case "DELETED":
		return SearchDeleted
	case "DRAFT":
		return SearchDraft
	case "FLAGGED":
		return SearchFlagged
	case "NEW":
		return SearchNew
	case "OLD":
		return SearchOld
	case "RECENT":
		return SearchRecent
	case "SEEN":
		return SearchSeen
	case "UNANSWERED":
		return SearchUnanswered
	case "UNDELETED":
		return SearchUndeleted
	case "UNDRAFT":
		return SearchUndraft
	case "UNFLAGGED":
		return SearchUnflagged
	default:
		return SearchUnseen
	}
}

func strSearchOp(key string) SearchOp {
	switch key {
	case "FROM":
		return SearchFrom
	case "TO":
		return SearchTo
	case "CC":
		return SearchCc
	case "BCC":
		return SearchBcc
	case "SUBJECT":
		return SearchSubject
	case "BODY":
		return SearchBody
	case "TEXT":
		return SearchText
	case "KEYWORD":
		return SearchKeyword
	default:
		return SearchUnkeyword
	}
}

func dateSearchOp(key string) SearchOp {
	switch key {
	case "BEFORE":
		return SearchBefore
	case "ON":
		return SearchOn
	case "SINCE":
		return SearchSince
	case "SENTBEFORE":
		return SearchSentBefore
	case "SENTON":
		return SearchSentOn
	default:
		return SearchSentSince
	}
}
