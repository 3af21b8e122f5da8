package toolexec

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"digits with punctuation", "(202) 456-1414", "2024561414", true},
		{"with filler phrase", "my number is 2024561414", "2024561414", true},
		{"spoken digit words", "two zero two four five six one four one four", "2024561414", true},
		{"too few digits", "555123", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizePhone(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"spoken at and dot", "d at example dot com", "d@example.com", true},
		{"already well formed", "Jane.Doe@Example.com", "jane.doe@example.com", true},
		{"mixed spoken", "jane dot doe at example dot org", "jane.doe@example.org", true},
		{"invalid", "not an email", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeEmail(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
