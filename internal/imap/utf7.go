package imap

import (
	"strings"
	"unicode/utf16"
)

// modified-UTF-7 (RFC 3501 §5.1.3) base64 alphabet: standard base64
// with "/" replaced by "," and no padding.
const mutf7Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

var mutf7Decode [256]int8

func init() {
	for i := range mutf7Decode {
		mutf7Decode[i] = -1
	}
	for i := 0; i < len(mutf7Alphabet); i++ {
		mutf7Decode[mutf7Alphabet[i]] = int8(i)
	}
}

// EncodeMailboxName converts a UTF-8 mailbox name to the modified-UTF-7
// wire form IMAP mailbox names use (spec §4.G mailbox-name handling).
// Printable ASCII passes through unchanged; any other rune starts a
// "&...-" shifted section containing its UTF-16BE code units in
// modified base64.
func EncodeMailboxName(name string) (string, error) {
	var b strings.Builder
	var pending []uint16

	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.WriteByte('&')
		b.WriteString(encodeMUTF7Units(pending))
		b.WriteByte('-')
		pending = pending[:0]
	}

	for _, r := range name {
		if r == '&' {
			flush()
			b.WriteString("&-")
			continue
		}
		if r >= 0x20 && r <= 0x7e {
			flush()
			b.WriteRune(r)
			continue
		}
		if r > 0xffff {
			r1, r2 := utf16.EncodeRune(r)
			pending = append(pending, uint16(r1), uint16(r2))
		} else {
			pending = append(pending, uint16(r))
		}
	}
	flush()
	return b.String(), nil
}

func encodeMUTF7Units(units []uint16) string {
	raw := make([]byte, 0, len(units)*2)
	for _, u := range units {
		raw = append(raw, byte(u>>8), byte(u))
	}

	var out strings.Builder
	var acc uint32
	var bits uint
	for _, byt := range raw {
		acc = acc<<8 | uint32(byt)
		bits += 8
		for bits >= 6 {
			bits -= 6
			idx := (acc >> bits) & 0x3f
			out.WriteByte(mutf7Alphabet[idx])
		}
	}
	if bits > 0 {
		idx := (acc << (6 - bits)) & 0x3f
		out.WriteByte(mutf7Alphabet[idx])
	}
	return out.String()
}

// DecodeMailboxName converts a mailbox name from modified-UTF-7 wire
// form back to UTF-8.
func DecodeMailboxName(wire string) (string, error) {
	if wire == "" {
		return "", nil
	}
	var b strings.Builder
	i := 0
	for i < len(wire) {
		c := wire[i]
		if c != '&' {
			b.WriteByte(c)
			i++
			continue
		}
		// "&-" is a literal "&".
		if i+1 < len(wire) && wire[i+1] == '-' {
			b.WriteByte('&')
			i += 2
			continue
		}
		end := strings.IndexByte(wire[i+1:], '-')
		if end < 0 {
			return "", &ParseError{Pos: i, Msg: "unterminated modified-UTF-7 section"}
		}
		section := wire[i+1 : i+1+end]
		units, err := decodeMUTF7Units(section)
		if err != nil {
			return "", &ParseError{Pos: i, Msg: err.Error()}
		}
		b.WriteString(string(utf16.Decode(units)))
		i += 1 + end + 1
	}
	return b.String(), nil
}

func decodeMUTF7Units(section string) ([]uint16, error) {
	var raw []byte
	var acc uint32
	var bits uint
	for j := 0; j < len(section); j++ {
		v := mutf7Decode[section[j]]
		if v < 0 {
			return nil, &ParseError{Pos: j, Msg: "invalid modified-UTF-7 character"}
		}
		acc = acc<<6 | uint32(v)
		bits += 6
		if bits >= 8 {
			bits -= 8
			raw = append(raw, byte(acc>>bits))
		}
	}

	units := make([]uint16, 0, len(raw)/2)
	for j := 0; j+1 < len(raw); j += 2 {
		units = append(units, uint16(raw[j])<<8|uint16(raw[j+1]))
	}
	return units, nil
}
