package imap

import (
	"fmt"
	"strconv"
	"strings"
)

// seqRange is an inclusive range of positive integers. HiStar means
// one end of the range is "*", the largest currently existing value;
// it is resolved against a concrete maximum at expansion time.
type seqRange struct {
	Lo     uint32
	Hi     uint32
	HiStar bool
}

// SequenceSet is the parsed form of an IMAP sequence-set: ascending
// comma-separated ranges of positive integers, with "*" standing for
// the largest currently existing value (MSN or UID depending on
// command context).
type SequenceSet struct {
	ranges []seqRange
}

// ParseSequenceSet parses a sequence-set token such as "1:3,5,9:*".
func ParseSequenceSet(s string) (SequenceSet, error) {
	if s == "" {
		return SequenceSet{}, fmt.Errorf("empty sequence-set")
	}

	var set SequenceSet
	for _, part := range strings.Split(s, ",") {
		r, err := parseSeqRange(part)
		if err != nil {
			return SequenceSet{}, err
		}
		set.ranges = append(set.ranges, r)
	}
	return set, nil
}

func parseSeqRange(tok string) (seqRange, error) {
	if tok == "" {
		return seqRange{}, fmt.Errorf("empty sequence-number")
	}

	colon := strings.IndexByte(tok, ':')
	if colon < 0 {
		lo, err := parseSeqNumber(tok)
		if err != nil {
			return seqRange{}, err
		}
		if lo.star {
			return seqRange{HiStar: true}, nil
		}
		return seqRange{Lo: lo.n, Hi: lo.n}, nil
	}

	loTok, hiTok := tok[:colon], tok[colon+1:]
	lo, err := parseSeqNumber(loTok)
	if err != nil {
		return seqRange{}, err
	}
	hi, err := parseSeqNumber(hiTok)
	if err != nil {
		return seqRange{}, err
	}

	r := seqRange{}
	if lo.star {
		r.HiStar = true // "*:N" normalized below by Expand
	} else {
		r.Lo = lo.n
	}
	if hi.star {
		r.HiStar = true
	} else {
		r.Hi = hi.n
	}
	if !lo.star && !hi.star && lo.n > hi.n {
		r.Lo, r.Hi = hi.n, lo.n
	}
	return r, nil
}

type seqNumber struct {
	n    uint32
	star bool
}

func parseSeqNumber(tok string) (seqNumber, error) {
	if tok == "*" {
		return seqNumber{star: true}, nil
	}
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil || n == 0 {
		return seqNumber{}, fmt.Errorf("invalid sequence-number: %q", tok)
	}
	return seqNumber{n: uint32(n)}, nil
}

// Expand resolves the set against max (the largest currently valid
// MSN or UID) and returns the distinct values in ascending order. A
// max of 0 yields an empty result.
func (s SequenceSet) Expand(max uint32) []uint32 {
	if max == 0 {
		return nil
	}

	seen := make(map[uint32]bool)
	var out []uint32
	add := func(n uint32) {
		if n >= 1 && n <= max && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	for _, r := range s.ranges {
		lo, hi := r.Lo, r.Hi
		if r.HiStar {
			if lo == 0 {
				// "*:N" keeps N as its other end; a bare "*" has none.
				lo = r.Hi
				if lo == 0 {
					lo = max
				}
			}
			hi = max
		}
		if lo == 0 {
			continue
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		for n := lo; n <= hi; n++ {
			add(n)
		}
	}

	// insertion sort; sequence sets are small in practice.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// IsEmpty reports whether the set has no ranges at all.
func (s SequenceSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// FormatUIDSet renders an ascending slice of UIDs as a compact
// sequence-set string, collapsing consecutive runs into "lo:hi" ranges
// (used by APPENDUID/COPYUID response codes).
func FormatUIDSet(uids []uint32) string {
	if len(uids) == 0 {
		return ""
	}
	var b strings.Builder
	i := 0
	for i < len(uids) {
		j := i
		for j+1 < len(uids) && uids[j+1] == uids[j]+1 {
			j++
		}
		if i > 0 {
			b.WriteByte(',')
		}
		if j == i {
			fmt.Fprintf(&b, "%d", uids[i])
		} else {
			fmt.Fprintf(&b, "%d:%d", uids[i], uids[j])
		}
		i = j + 1
	}
	return b.String()
}
