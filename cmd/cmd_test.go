package cmd

import "testing"

func TestParseSessionInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"kitten-waffle-stardust-happy", "kitten-waffle-stardust-happy", false},
		{"  spaced-id ", "spaced-id", false},
		{"https://warpcall.qzz.io/call/kitten-waffle/", "kitten-waffle", false},
		{"http://localhost:3000/call/abc?x=1", "abc", false},
		{"https://warpcall.qzz.io/other/abc", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseSessionInput(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSessionInput(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSessionInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
