package redact

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"amelia.earhart@example.com", "am***@example.com"},
		{"  ab@example.com ", "***@example.com"},
		{"a@b", "***@b"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
		{"", "***@***"},
	}
	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmails(t *testing.T) {
	got := Emails([]string{"pilot@example.com", "x"})
	if len(got) != 2 || got[0] != "pi***@example.com" || got[1] != "***@***" {
		t.Errorf("Emails = %v", got)
	}
}
