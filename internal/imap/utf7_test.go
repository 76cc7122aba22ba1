package imap

import "testing"

func TestEncodeMailboxName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain ascii", in: "INBOX/Drafts", want: "INBOX/Drafts"},
		{name: "literal ampersand", in: "Q&A", want: "Q&-A"},
		{name: "rfc3501 example", in: "~peter/mail/日本語/月次", want: "~peter/mail/&ZeVnLIqe-/&ZwhrIQ-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeMailboxName(tt.in)
			if err != nil {
				t.Fatalf("EncodeMailboxName: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeMailboxName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain ascii", in: "INBOX/Drafts", want: "INBOX/Drafts"},
		{name: "literal ampersand", in: "Q&-A", want: "Q&A"},
		{name: "rfc3501 example", in: "~peter/mail/&ZeVnLIqe-/&ZwhrIQ-", want: "~peter/mail/日本語/月次"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMailboxName(tt.in)
			if err != nil {
				t.Fatalf("DecodeMailboxName: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeMailboxNameErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "unterminated section", in: "INBOX/&ZeVnLIqe"},
		{name: "invalid character", in: "INBOX/&###-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMailboxName(tt.in); err == nil {
				t.Errorf("expected error for %q", tt.in)
			}
		})
	}
}

func TestMailboxNameRoundTrip(t *testing.T) {
	names := []string{
		"INBOX",
		"Sent Items",
		"日本語",
		"Q&A/Archive",
		"~peter/mail/日本語/月次",
	}
	for _, name := range names {
		encoded, err := EncodeMailboxName(name)
		if err != nil {
			t.Fatalf("EncodeMailboxName(%q): %v", name, err)
		}
		decoded, err := DecodeMailboxName(encoded)
		if err != nil {
			t.Fatalf("DecodeMailboxName(%q): %v", encoded, err)
		}
		if decoded != name {
			t.Errorf("round trip: got %q, want %q (encoded %q)", decoded, name, encoded)
		}
	}
}
