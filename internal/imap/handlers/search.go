package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/archiveopteryx/imapd/internal/imap"
)

// Search implements SEARCH/UID SEARCH. The parsed criterion tree is
// handed to the storage backend verbatim (storage.SearchQuery is
// implementation-defined, per spec component H); this handler's job is
// restricting the result to the session's current view and rendering
// the response in MSN or UID form as requested.
func Search(ctx context.Context, hc *imap.HandlerContext, cmd *imap.ParsedCommand) *imap.Result {
	if hc.Conn.Session == nil {
		return &imap.Result{Cond: imap.BAD, Text: "No mailbox selected"}
	}
	sess := hc.Conn.Session

	matched, err := hc.Storage.Search(ctx, sess.Mailbox, cmd.Args.SearchQuery)
	if err != nil {
		return &imap.Result{Cond: imap.NO, Text: "SEARCH failed: " + err.Error()}
	}

	present := make(map[uint32]bool, len(matched))
	for _, uid := range matched {
		present[uid] = true
	}

	var nums []string
	for uid := range present {
		msn, ok := sess.MSNForUID(uid)
		if !ok {
			continue
		}
		if cmd.UID {
			nums = append(nums, strconv.FormatUint(uint64(uid), 10))
			continue
		}
		nums = append(nums, strconv.FormatUint(uint64(msn), 10))
	}
	sortNumericStrings(nums)

	cmd.Untagged = append(cmd.Untagged, "SEARCH "+strings.Join(nums, " "))
	return &imap.Result{Cond: imap.OK, Text: "SEARCH completed"}
}

func sortNumericStrings(s []string) {
	vals := make([]int, len(s))
	for i, v := range s {
		n, _ := strconv.Atoi(v)
		vals[i] = n
	}
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
