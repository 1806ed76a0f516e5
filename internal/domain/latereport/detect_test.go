package latereport

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestIsLateMessage(t *testing.T) {
	vocab := DefaultVocabulary()
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "Chinese late keyword", text: "抱歉今天會晚到", want: true},
		{name: "Traffic only", text: "路上塞車中", want: true},
		{name: "English phrase", text: "I might be late because of traffic", want: true},
		{name: "Case as authored", text: "stuck on the highway", want: true},
		{name: "Different case does not match", text: "LATE", want: false},
		{name: "Unrelated English", text: "see you at lunch", want: false},
		{name: "Unrelated Chinese", text: "午餐吃什麼", want: false},
		{name: "Empty", text: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vocab.IsLateMessage(tt.text); got != tt.want {
				t.Errorf("IsLateMessage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractReason(t *testing.T) {
	vocab := DefaultVocabulary()
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "Keyword starts the reason",
			text:   "抱歉，因為塞車所以會晚到",
			want:   "因為塞車所以會晚到",
			wantOK: true,
		},
		{
			name:   "English keyword",
			text:   "Sorry, late because the bus broke down",
			want:   "because the bus broke down",
			wantOK: true,
		},
		{
			name:   "Long message without keyword is the reason",
			text:   "今天早上臨出門前找不到鑰匙",
			want:   "今天早上臨出門前找不到鑰匙",
			wantOK: true,
		},
		{
			name:   "Short message without keyword",
			text:   "ok",
			want:   "",
			wantOK: false,
		},
		{
			name:   "Short Chinese message without keyword",
			text:   "會晚到",
			want:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := vocab.ExtractReason(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractReason(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractReasonCapsWindow(t *testing.T) {
	vocab := DefaultVocabulary()
	text := "因為" + strings.Repeat("車", 80)

	got, ok := vocab.ExtractReason(text)
	if !ok {
		t.Fatal("expected a reason")
	}
	if n := utf8.RuneCountInString(got); n != reasonWindow {
		t.Errorf("reason length = %d, want %d", n, reasonWindow)
	}
	if !strings.HasPrefix(got, "因為") {
		t.Errorf("reason %q does not start at the keyword", got)
	}
}

func TestPresetLookup(t *testing.T) {
	vocab := DefaultVocabulary()

	p, ok := vocab.Preset("traffic")
	if !ok {
		t.Fatal("traffic preset missing")
	}
	if p.Reason != "交通問題（塞車、公車延誤、交通意外等）" {
		t.Errorf("unexpected traffic reason %q", p.Reason)
	}
	if _, ok := vocab.Preset(PresetOther); ok {
		t.Error("other must not resolve to a canned reason")
	}
}
