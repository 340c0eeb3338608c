package keywords

import (
	"reflect"
	"testing"
)

func TestNewSet_Normalizes(t *testing.T) {
	s := NewSet("  VPN ", "vpn", "", "   ", "Casino", "CASINO\t")

	want := []string{"vpn", "casino"}
	if got := s.Words(); !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %v, want %v", got, want)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if !s.Contains(" Vpn") {
		t.Error("Contains(\" Vpn\") = false, want true")
	}
	if s.Contains("") {
		t.Error("Contains(\"\") = true, want false")
	}
}

func TestSet_WordsIsCopy(t *testing.T) {
	s := NewSet("a", "b")
	words := s.Words()
	words[0] = "mutated"

	if s.Words()[0] != "a" {
		t.Error("Words() exposed internal slice")
	}
}

func TestSet_NilIsEmpty(t *testing.T) {
	var s *Set
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if s.Contains("x") {
		t.Error("Contains on nil set returned true")
	}
	if _, ok := s.Match("anything", nil); ok {
		t.Error("Match on nil set returned a match")
	}
}

func TestSet_Match(t *testing.T) {
	s := NewSet("vpn", "casino", "ad", "t.me/promo")

	tests := []struct {
		name   string
		text   string
		links  []string
		want   string
		wantOK bool
	}{
		{"text substring", "Buy cheap VPN now", nil, "vpn", true},
		{"link substring", "look at this", []string{"https://T.ME/promo/123"}, "t.me/promo", true},
		{"first keyword wins", "casino with vpn", nil, "vpn", true},
		{"text checked before later keywords", "best casino", []string{"https://x.com/vpn"}, "vpn", true},
		{"no word boundary", "please add me", nil, "ad", true},
		{"no match", "hello world", []string{"https://example.com"}, "", false},
		{"empty input", "", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Match(tt.text, tt.links)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Match(%q, %v) = (%q, %v), want (%q, %v)", tt.text, tt.links, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VPN", "vpn"},
		{"  Casino\n", "casino"},
		{"", ""},
		{" \t ", ""},
		{"Mixed Case Phrase", "mixed case phrase"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
