package logging

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"silent", LogLevelSilent, false},
		{"error", LogLevelError, false},
		{"warning", LogLevelWarning, false},
		{"verbose", LogLevelVerbose, false},
		{"loud", LogLevelVerbose, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, %v", tt.name, got, err)
		}
	}
}

func TestEnabled(t *testing.T) {
	defer Initialize("verbose")

	Initialize("warning")
	if !Enabled(LogLevelError) || !Enabled(LogLevelWarning) || Enabled(LogLevelVerbose) {
		t.Error("warning level gates incorrectly")
	}

	Initialize("silent")
	for _, level := range []int{LogLevelError, LogLevelWarning, LogLevelVerbose} {
		if Enabled(level) {
			t.Errorf("level %d enabled while silent", level)
		}
	}

	Initialize("nonsense")
	if !Enabled(LogLevelVerbose) {
		t.Error("unknown level should fall back to verbose")
	}
}
