// Package memstore is an in-memory storage.Backend implementation,
// suitable for tests and small deployments that do not need messages
// to survive a restart. It fans mailbox mutations out to subscribed
// Sessions through internal/notifybus.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/notifybus"
	"github.com/archiveopteryx/imapd/internal/storage"
)

type message struct {
	uid          uint32
	flags        map[string]bool
	internalDate time.Time
	body         []byte
	modSeq       uint64
}

func (m *message) flagSlice() []string {
	out := make([]string, 0, len(m.flags))
	for f := range m.flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

type mailbox struct {
	mu          sync.Mutex
	name        string
	uidValidity uint32
	nextUID     uint32
	messages    []*message // ascending by uid
	subscribed  bool
	noSelect    bool
}

// Store is an in-memory storage.Backend. The zero value is not usable;
// construct with New.
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	bus       *notifybus.Bus[storage.ChangeEvent]
	modSeq    uint64
	delimiter byte
}

// New returns a Store with a single "INBOX" mailbox already created, as
// every IMAP account is required to have one.
func New() *Store {
	s := &Store{
		mailboxes: make(map[string]*mailbox),
		bus:       notifybus.New[storage.ChangeEvent](),
		delimiter: '/',
	}
	s.mailboxes["INBOX"] = &mailbox{name: "INBOX", uidValidity: 1, nextUID: 1}
	return s
}

func (s *Store) nextModSeq() uint64 {
	s.modSeq++
	return s.modSeq
}

func (s *Store) get(name string) (*mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mailboxes[name]
	if !ok {
		return nil, fmt.Errorf("no such mailbox: %s", name)
	}
	return mb, nil
}

func (s *Store) Status(ctx context.Context, mailbox string) (storage.MailboxStatus, error) {
	mb, err := s.get(mailbox)
	if err != nil {
		return storage.MailboxStatus{}, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	var unseen uint32
	var highest uint64
	for i, m := range mb.messages {
		if !m.flags[`\Seen`] && unseen == 0 {
			unseen = uint32(i + 1)
		}
		if m.modSeq > highest {
			highest = m.modSeq
		}
	}

	return storage.MailboxStatus{
		UIDValidity:    mb.uidValidity,
		UIDNext:        mb.nextUID,
		Exists:         uint32(len(mb.messages)),
		Recent:         0,
		Unseen:         unseen,
		HighestModSeq:  highest,
		PermanentFlags: nil,
		Flags:          nil,
	}, nil
}

func (s *Store) Fetch(ctx context.Context, mbname string, uids []uint32, attrs storage.AttributeSet) (<-chan storage.FetchResult, error) {
	mb, err := s.get(mbname)
	if err != nil {
		return nil, err
	}
	out := make(chan storage.FetchResult, len(uids))

	mb.mu.Lock()
	byUID := make(map[uint32]*message, len(mb.messages))
	for _, m := range mb.messages {
		byUID[m.uid] = m
	}
	mb.mu.Unlock()

	go func() {
		defer close(out)
		for _, uid := range uids {
			select {
			case <-ctx.Done():
				return
			default:
			}
			m, ok := byUID[uid]
			if !ok {
				continue
			}
			out <- storage.FetchResult{Attrs: renderAttrs(m, attrs)}
		}
	}()
	return out, nil
}

func renderAttrs(m *message, want storage.AttributeSet) storage.MessageAttrs {
	a := storage.MessageAttrs{
		UID:          m.uid,
		Flags:        m.flagSlice(),
		ModSeq:       m.modSeq,
		InternalDate: m.internalDate,
		Size:         int64(len(m.body)),
	}
	if want.Envelope {
		a.Envelope = renderEnvelope(m.body)
	}
	if want.BodyStructure {
		a.BodyStructure = renderBodyStructure(m.body)
	}
	if want.Header {
		a.Header = extractHeader(m.body)
	}
	if want.Body || want.BodySection != "" {
		a.Body = extractSection(m.body, want.BodySection)
	}
	return a
}

func (s *Store) ModifyFlags(ctx context.Context, mbname string, uids []uint32, op storage.FlagOp, newFlags []string, unchangedSince int64) (storage.FlagModification, error) {
	mb, err := s.get(mbname)
	if err != nil {
		return storage.FlagModification{}, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	wanted := make(map[uint32]bool, len(uids))
	for _, u := range uids {
		wanted[u] = true
	}

	var result storage.FlagModification
	for _, m := range mb.messages {
		if !wanted[m.uid] {
			continue
		}
		if unchangedSince >= 0 && int64(m.modSeq) > unchangedSince {
			result.ConflictedUIDs = append(result.ConflictedUIDs, m.uid)
			continue
		}
		switch op {
		case storage.FlagOpSet:
			m.flags = make(map[string]bool, len(newFlags))
			for _, f := range newFlags {
				m.flags[f] = true
			}
		case storage.FlagOpAdd:
			for _, f := range newFlags {
				m.flags[f] = true
			}
		case storage.FlagOpRemove:
			for _, f := range newFlags {
				delete(m.flags, f)
			}
		}
		m.modSeq = s.nextModSeq()
		result.ModifiedUIDs = append(result.ModifiedUIDs, m.uid)
		s.bus.Publish(mbname, storage.ChangeEvent{Kind: storage.ChangeFlagsUpdated, UID: m.uid, Flags: m.flagSlice(), ModSeq: m.modSeq})
	}
	return result, nil
}

func (s *Store) Subscribe(ctx context.Context, mbname string) (<-chan storage.ChangeEvent, error) {
	if _, err := s.get(mbname); err != nil {
		return nil, err
	}
	ch := s.bus.Subscribe(mbname)
	go func() {
		<-ctx.Done()
		s.bus.Unsubscribe(mbname, ch)
	}()
	return ch, nil
}

func (s *Store) Search(ctx context.Context, mbname string, query storage.SearchQuery) ([]uint32, error) {
	mb, err := s.get(mbname)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	node, _ := query.(*imap.SearchNode)

	var out []uint32
	for i, m := range mb.messages {
		if node == nil || evalSearch(node, m, i+1) {
			out = append(out, m.uid)
		}
	}
	return out, nil
}

func (s *Store) Append(ctx context.Context, mbname string, body io.Reader, flags []string, internalDate time.Time) (uint32, error) {
	mb, err := s.get(mbname)
	if err != nil {
		return 0, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	mb.mu.Lock()
	uid := mb.nextUID
	mb.nextUID++
	m := &message{
		uid:          uid,
		flags:        make(map[string]bool, len(flags)),
		internalDate: internalDate,
		body:         data,
		modSeq:       s.nextModSeq(),
	}
	for _, f := range flags {
		m.flags[f] = true
	}
	mb.messages = append(mb.messages, m)
	mb.mu.Unlock()

	s.bus.Publish(mbname, storage.ChangeEvent{Kind: storage.ChangeNewMessage, UID: uid, Flags: m.flagSlice(), ModSeq: m.modSeq})
	return uid, nil
}

func (s *Store) Copy(ctx context.Context, src, dst string, uids []uint32) ([]uint32, error) {
	srcMB, err := s.get(src)
	if err != nil {
		return nil, err
	}
	dstMB, err := s.get(dst)
	if err != nil {
		return nil, err
	}

	srcMB.mu.Lock()
	byUID := make(map[uint32]*message, len(srcMB.messages))
	for _, m := range srcMB.messages {
		byUID[m.uid] = m
	}
	srcMB.mu.Unlock()

	dstMB.mu.Lock()
	defer dstMB.mu.Unlock()

	destUIDs := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		orig, ok := byUID[uid]
		if !ok {
			continue
		}
		newUID := dstMB.nextUID
		dstMB.nextUID++
		copied := &message{
			uid:          newUID,
			flags:        make(map[string]bool, len(orig.flags)),
			internalDate: orig.internalDate,
			body:         append([]byte(nil), orig.body...),
			modSeq:       s.nextModSeq(),
		}
		for f := range orig.flags {
			copied.flags[f] = true
		}
		dstMB.messages = append(dstMB.messages, copied)
		destUIDs = append(destUIDs, newUID)
		s.bus.Publish(dst, storage.ChangeEvent{Kind: storage.ChangeNewMessage, UID: newUID, Flags: copied.flagSlice(), ModSeq: copied.modSeq})
	}
	return destUIDs, nil
}

func (s *Store) Expunge(ctx context.Context, mbname string) ([]uint32, error) {
	mb, err := s.get(mbname)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	var expunged []uint32
	kept := mb.messages[:0:0]
	for _, m := range mb.messages {
		if m.flags[`\Deleted`] {
			expunged = append(expunged, m.uid)
			continue
		}
		kept = append(kept, m)
	}
	mb.messages = kept

	descending := make([]uint32, 0, len(expunged))
	for i := len(expunged) - 1; i >= 0; i-- {
		descending = append(descending, expunged[i])
		s.bus.Publish(mbname, storage.ChangeEvent{Kind: storage.ChangeExpunged, UID: expunged[i]})
	}
	return descending, nil
}

func (s *Store) Create(ctx context.Context, mbname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mailboxes[mbname]; ok {
		return fmt.Errorf("mailbox already exists: %s", mbname)
	}
	s.mailboxes[mbname] = &mailbox{name: mbname, uidValidity: uint32(len(s.mailboxes) + 1), nextUID: 1}
	return nil
}

func (s *Store) Delete(ctx context.Context, mbname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mbname == "INBOX" {
		return fmt.Errorf("cannot delete INBOX")
	}
	if _, ok := s.mailboxes[mbname]; !ok {
		return fmt.Errorf("no such mailbox: %s", mbname)
	}
	delete(s.mailboxes, mbname)
	s.bus.Publish(mbname, storage.ChangeEvent{Kind: storage.ChangeMailboxDeleted})
	return nil
}

func (s *Store) Rename(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb, ok := s.mailboxes[from]
	if !ok {
		return fmt.Errorf("no such mailbox: %s", from)
	}
	if _, exists := s.mailboxes[to]; exists {
		return fmt.Errorf("mailbox already exists: %s", to)
	}
	mb.name = to
	s.mailboxes[to] = mb
	if from != "INBOX" {
		delete(s.mailboxes, from)
	} else {
		s.mailboxes["INBOX"] = &mailbox{name: "INBOX", uidValidity: mb.uidValidity + 1000, nextUID: 1}
	}
	s.bus.Rename(from, to)
	return nil
}

func (s *Store) SetSubscribed(ctx context.Context, mbname string, subscribed bool) error {
	mb, err := s.get(mbname)
	if err != nil {
		return err
	}
	mb.mu.Lock()
	mb.subscribed = subscribed
	mb.mu.Unlock()
	return nil
}

func (s *Store) List(ctx context.Context, reference, pattern string, subscribedOnly bool) ([]storage.MailboxInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full := reference + pattern
	var out []storage.MailboxInfo
	names := make([]string, 0, len(s.mailboxes))
	for name := range s.mailboxes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mb := s.mailboxes[name]
		if subscribedOnly && !mb.subscribed {
			continue
		}
		if !matchMailboxPattern(full, name, s.delimiter) {
			continue
		}
		hasChildren := false
		prefix := name + string(s.delimiter)
		for _, other := range names {
			if strings.HasPrefix(other, prefix) {
				hasChildren = true
				break
			}
		}
		out = append(out, storage.MailboxInfo{
			Name:        name,
			Delimiter:   s.delimiter,
			NoSelect:    mb.noSelect,
			HasChildren: hasChildren,
			Subscribed:  mb.subscribed,
		})
	}
	return out, nil
}

// matchMailboxPattern implements RFC 3501's "%" (matches any characters
// except the hierarchy delimiter) and "*" (matches any characters,
// including the delimiter) wildcards.
func matchMailboxPattern(pattern, name string, delim byte) bool {
	return wildcardMatch([]rune(strings.ToUpper(pattern)), []rune(strings.ToUpper(name)), rune(delim))
}

func wildcardMatch(pattern, name []rune, delim rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(name); i++ {
			if wildcardMatch(pattern[1:], name[i:], delim) {
				return true
			}
		}
		return false
	case '%':
		for i := 0; i <= len(name); i++ {
			if i > 0 && name[i-1] == delim {
				break
			}
			if wildcardMatch(pattern[1:], name[i:], delim) {
				return true
			}
		}
		return false
	default:
		if len(name) == 0 || name[0] != pattern[0] {
			return false
		}
		return wildcardMatch(pattern[1:], name[1:], delim)
	}
}

func extractHeader(body []byte) []byte {
	idx := bytes.Index(body, []byte("\r\n\r\n"))
	if idx < 0 {
		return body
	}
	return body[:idx+2]
}

func extractSection(body []byte, section string) []byte {
	u := strings.ToUpper(section)
	switch {
	case strings.Contains(u, "HEADER"):
		return extractHeader(body)
	case strings.Contains(u, "TEXT"):
		idx := bytes.Index(body, []byte("\r\n\r\n"))
		if idx < 0 {
			return nil
		}
		return body[idx+4:]
	default:
		return body
	}
}

func renderEnvelope(body []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(body))
	if err != nil {
		return `(NIL NIL NIL NIL NIL NIL NIL NIL NIL NIL)`
	}
	h := msg.Header
	quote := func(s string) string {
		if s == "" {
			return "NIL"
		}
		return imap.QuoteOrLiteral(s)
	}
	addr := func(field string) string {
		list, err := h.AddressList(field)
		if err != nil || len(list) == 0 {
			return "NIL"
		}
		var parts []string
		for _, a := range list {
			parts = append(parts, fmt.Sprintf("(%s NIL %s %s)", quote(a.Name), quote(localPart(a.Address)), quote(domainPart(a.Address))))
		}
		return "(" + strings.Join(parts, "") + ")"
	}
	from := addr("From")
	return fmt.Sprintf("(%s %s %s %s %s NIL NIL NIL %s %s)",
		quote(h.Get("Date")), quote(h.Get("Subject")),
		from, from,
		addr("To"), quote(h.Get("In-Reply-To")), quote(h.Get("Message-Id")))
}

func renderBodyStructure(body []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(body))
	contentType := "TEXT"
	subtype := "PLAIN"
	if err == nil {
		if ct := msg.Header.Get("Content-Type"); ct != "" {
			parts := strings.SplitN(ct, "/", 2)
			if len(parts) == 2 {
				contentType = strings.ToUpper(strings.TrimSpace(parts[0]))
				subtype = strings.ToUpper(strings.TrimSpace(strings.SplitN(parts[1], ";", 2)[0]))
			}
		}
	}
	lines := bytes.Count(body, []byte("\n"))
	return fmt.Sprintf(`(%s %s NIL NIL NIL "7BIT" %d %d)`, imap.QuoteOrLiteral(contentType), imap.QuoteOrLiteral(subtype), len(body), lines)
}

func localPart(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

func domainPart(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

func evalSearch(n *imap.SearchNode, m *message, msn int) bool {
	switch n.Op {
	case imap.SearchAnd:
		for _, c := range n.Children {
			if !evalSearch(c, m, msn) {
				return false
			}
		}
		return true
	case imap.SearchOr:
		for _, c := range n.Children {
			if evalSearch(c, m, msn) {
				return true
			}
		}
		return false
	case imap.SearchNot:
		return len(n.Children) == 1 && !evalSearch(n.Children[0], m, msn)
	case imap.SearchAll:
		return true
	case imap.SearchAnswered:
		return m.flags[`\Answered`]
	case imap.SearchUnanswered:
		return !m.flags[`\Answered`]
	case imap.SearchDeleted:
		return m.flags[`\Deleted`]
	case imap.SearchUndeleted:
		return !m.flags[`\Deleted`]
	case imap.SearchDraft:
		return m.flags[`\Draft`]
	case imap.SearchUndraft:
		return !m.flags[`\Draft`]
	case imap.SearchFlagged:
		return m.flags[`\Flagged`]
	case imap.SearchUnflagged:
		return !m.flags[`\Flagged`]
	case imap.SearchSeen:
		return m.flags[`\Seen`]
	case imap.SearchUnseen:
		return !m.flags[`\Seen`]
	case imap.SearchNew:
		return m.flags[`\Recent`] && !m.flags[`\Seen`]
	case imap.SearchOld:
		return !m.flags[`\Recent`]
	case imap.SearchRecent:
		return m.flags[`\Recent`]
	case imap.SearchKeyword:
		return m.flags[n.Str]
	case imap.SearchUnkeyword:
		return !m.flags[n.Str]
	case imap.SearchFrom:
		return headerContains(m.body, "From", n.Str)
	case imap.SearchTo:
		return headerContains(m.body, "To", n.Str)
	case imap.SearchCc:
		return headerContains(m.body, "Cc", n.Str)
	case imap.SearchBcc:
		return headerContains(m.body, "Bcc", n.Str)
	case imap.SearchSubject:
		return headerContains(m.body, "Subject", n.Str)
	case imap.SearchHeader:
		return headerContains(m.body, n.HeaderKey, n.Str)
	case imap.SearchBody:
		return bytes.Contains(bytes.ToUpper(extractSection(m.body, "TEXT")), []byte(strings.ToUpper(n.Str)))
	case imap.SearchText:
		return bytes.Contains(bytes.ToUpper(m.body), []byte(strings.ToUpper(n.Str)))
	case imap.SearchLarger:
		return int64(len(m.body)) > n.Number
	case imap.SearchSmaller:
		return int64(len(m.body)) < n.Number
	case imap.SearchBefore:
		return dateCompare(m.internalDate, n.Date) < 0
	case imap.SearchOn:
		return dateCompare(m.internalDate, n.Date) == 0
	case imap.SearchSince:
		return dateCompare(m.internalDate, n.Date) >= 0
	case imap.SearchSentBefore, imap.SearchSentOn, imap.SearchSentSince:
		return true // no independent Date: header tracking in this backend
	case imap.SearchUID:
		return containsUint32(n.Seq.Expand(m.uid), m.uid)
	case imap.SearchSequence:
		return containsUint32(n.Seq.Expand(uint32(msn)), uint32(msn))
	default:
		return false
	}
}

func headerContains(body []byte, field, substr string) bool {
	msg, err := mail.ReadMessage(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToUpper(msg.Header.Get(field)), strings.ToUpper(substr))
}

func dateCompare(t time.Time, rfc3501Date string) int {
	d, err := time.Parse("02-Jan-2006", rfc3501Date)
	if err != nil {
		return 0
	}
	ty, tm, td := t.Date()
	dy, dm, dd := d.Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func containsUint32(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
