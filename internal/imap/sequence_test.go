package imap

import (
	"reflect"
	"testing"
)

func TestParseSequenceSetAndExpand(t *testing.T) {
	tests := []struct {
		name string
		set  string
		max  uint32
		want []uint32
	}{
		{name: "single", set: "5", max: 10, want: []uint32{5}},
		{name: "range", set: "1:3", max: 10, want: []uint32{1, 2, 3}},
		{name: "reversed range", set: "3:1", max: 10, want: []uint32{1, 2, 3}},
		{name: "star", set: "9:*", max: 10, want: []uint32{9, 10}},
		{name: "bare star", set: "*", max: 10, want: []uint32{10}},
		{name: "comma list", set: "1:3,5,9:*", max: 10, want: []uint32{1, 2, 3, 5, 9, 10}},
		{name: "dedup overlap", set: "1:3,2:4", max: 10, want: []uint32{1, 2, 3, 4}},
		{name: "zero max", set: "1:*", max: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseSequenceSet(tt.set)
			if err != nil {
				t.Fatalf("ParseSequenceSet(%q): %v", tt.set, err)
			}
			got := set.Expand(tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand(%d) = %v, want %v", tt.max, got, tt.want)
			}
		})
	}
}

func TestParseSequenceSetErrors(t *testing.T) {
	tests := []string{"", "0", "abc", "1:", ":5", "1,,2"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			if _, err := ParseSequenceSet(s); err == nil {
				t.Errorf("expected error for %q", s)
			}
		})
	}
}

func TestSequenceSetIsEmpty(t *testing.T) {
	var empty SequenceSet
	if !empty.IsEmpty() {
		t.Error("zero-value SequenceSet should be empty")
	}
	set, err := ParseSequenceSet("1:3")
	if err != nil {
		t.Fatalf("ParseSequenceSet: %v", err)
	}
	if set.IsEmpty() {
		t.Error("parsed set should not be empty")
	}
}

func TestFormatUIDSet(t *testing.T) {
	tests := []struct {
		name string
		in   []uint32
		want string
	}{
		{name: "empty", in: nil, want: ""},
		{name: "single", in: []uint32{5}, want: "5"},
		{name: "consecutive run", in: []uint32{1, 2, 3}, want: "1:3"},
		{name: "mixed", in: []uint32{1, 2, 3, 5, 9, 10}, want: "1:3,5,9:10"},
		{name: "all singletons", in: []uint32{1, 3, 5}, want: "1,3,5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatUIDSet(tt.in)
			if got != tt.want {
				t.Errorf("FormatUIDSet(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
