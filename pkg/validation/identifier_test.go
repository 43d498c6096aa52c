package validation

import (
	"testing"
)

func TestValidateBoardID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid board ids
		{"simple", "retro", false},
		{"single char", "a", false},
		{"with digits", "sprint42", false},
		{"hyphenated", "design-review", false},
		{"dotted", "team.alpha", false},
		{"underscored", "q3_planning", false},
		{"uuid", "3f2c7a1e-9d4b-4c6f-8a2e-1b5d9c7e3f00", false},
		{"max length", strings64(), false},

		// Invalid board ids
		{"empty", "", true},
		{"too long", strings64() + "x", true},
		{"path traversal", "../secrets", true},
		{"slash", "boards/other", true},
		{"spaces", "design review", true},
		{"newline", "board\nid", true},
		{"starts with dot", ".hidden", true},
		{"starts with hyphen", "-board", true},
		{"null byte", "board\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBoardID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBoardID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateActorName(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		wantErr bool
	}{
		// Valid actor names
		{"simple", "alice", false},
		{"display name", "Jin L", false},
		{"uuid", "3f2c7a1e-9d4b-4c6f-8a2e-1b5d9c7e3f00", false},
		{"punctuation", "bob (design)", false},

		// Invalid actor names
		{"empty", "", true},
		{"newline", "alice\nbob", true},
		{"tab", "alice\tbob", true},
		{"null byte", "alice\x00", true},
		{"too long", strings64() + "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateActorName(tt.actor)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateActorName(%q) error = %v, wantErr %v", tt.actor, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeBoardID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "retro", "retro", false},
		{"trimmed", "  retro  ", "retro", false},
		{"case preserved", "Retro", "Retro", false},
		{"invalid rejected", "bad board!", "", true},
		{"only spaces", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeBoardID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeBoardID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeBoardID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

// strings64 returns a 64-character id at the validation boundary.
func strings64() string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}
