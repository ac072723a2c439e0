package source

import "testing"

func TestParseHistoryLine(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		cmd      string
		started  int64
		duration int64
	}{
		{"zsh extended", ": 1700000000:5;make test", "make test", 1700000000, 5},
		{"zsh zero duration", ": 1700000001:0;ls -la", "ls -la", 1700000001, 0},
		{"plain bash", "git status", "git status", 0, 0},
		{"empty", "", "", 0, 0},
		{"whitespace only", "   ", "", 0, 0},
		{"command containing semicolons", ": 1700000002:1;echo a; echo b", "echo a; echo b", 1700000002, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, started, duration := parseHistoryLine(tc.line)
			if cmd != tc.cmd || started != tc.started || duration != tc.duration {
				t.Errorf("parseHistoryLine(%q) = (%q, %d, %d), want (%q, %d, %d)",
					tc.line, cmd, started, duration, tc.cmd, tc.started, tc.duration)
			}
		})
	}
}
