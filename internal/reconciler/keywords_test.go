package reconciler

import "testing"

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		body string
		want KeywordAction
	}{
		{"STOP", ActionOptOut},
		{"stop", ActionOptOut},
		{"  Stop  ", ActionOptOut},
		{"STOPALL", ActionOptOut},
		{"UNSUBSCRIBE", ActionOptOut},
		{"Cancel", ActionOptOut},
		{"END", ActionOptOut},
		{"quit", ActionOptOut},
		{"START", ActionOptIn},
		{"unstop", ActionOptIn},
		{"YES", ActionOptIn},
		{"HELP", ActionHelp},
		{"Info", ActionHelp},
		{"thanks, will do", ActionNone},
		{"please stop sending me these", ActionNone},
		{"", ActionNone},
	}

	for _, tt := range tests {
		if got := MatchKeyword(tt.body); got != tt.want {
			t.Errorf("MatchKeyword(%q) = %s, want %s", tt.body, got, tt.want)
		}
	}
}
