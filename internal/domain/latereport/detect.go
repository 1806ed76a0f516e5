package latereport

import (
	"strings"
	"unicode/utf8"
)

const (
	// reasonWindow caps an extracted reason, counted in characters from the matched keyword.
	reasonWindow = 50
	// implicitReasonLength is the length a message must exceed to be taken as the reason
	// itself when no reason keyword is present.
	implicitReasonLength = 10

	// PresetOther asks the user to type a reason instead of choosing a preset.
	PresetOther = "other"
)

// Preset is one canned reason offered on the reason keyboard.
type Preset struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Reason string `yaml:"reason"`
}

// Vocabulary holds the keyword lists and reason presets.
// The zero value detects nothing; use DefaultVocabulary or load one from YAML.
type Vocabulary struct {
	LateKeywords   []string `yaml:"late_keywords"`
	ReasonKeywords []string `yaml:"reason_keywords"`
	Presets        []Preset `yaml:"presets"`
}

// DefaultVocabulary returns the built-in Chinese and English vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		LateKeywords: []string{
			"遲到", "晚到", "晚點到", "遲點到", "會晚到", "會遲到",
			"晚一點", "遲一點", "延遲到達", "延後到達",
			"塞車", "路況", "交通", "來不及", "趕不上",
			"有事", "臨時", "抱歉", "不好意思",
			"late", "running behind", "traffic", "sorry",
			"unexpectedly", "delayed", "stuck",
		},
		ReasonKeywords: []string{
			"因為", "由於", "原因是", "是因為",
			"塞車", "路況", "交通", "公車", "捷運", "開車",
			"身體", "不舒服", "生病", "發燒",
			"家裡", "家中", "小孩", "家人",
			"臨時", "突然", "緊急",
			"忘記", "睡過頭", "鬧鐘",
			"because", "due to", "traffic", "bus", "train",
			"sick", "doctor", "family", "kid",
			"emergency", "forgot", "overslept", "alarm",
		},
		Presets: []Preset{
			{Key: "traffic", Label: "🚗 交通問題", Reason: "交通問題（塞車、公車延誤、交通意外等）"},
			{Key: "health", Label: "🏥 身體不適", Reason: "身體不適（生病、看醫生等）"},
			{Key: "family", Label: "👨‍👩‍👧‍👦 家庭因素", Reason: "家庭因素（照顧家人、家中有事等）"},
			{Key: "emergency", Label: "🚨 緊急事件", Reason: "緊急事件（臨時有急事需要處理）"},
			{Key: "overslept", Label: "😴 睡過頭", Reason: "睡過頭（鬧鐘沒響、太累等）"},
		},
	}
}

// IsLateMessage reports whether text contains any late keyword.
// Matching is plain case-sensitive substring containment.
func (v Vocabulary) IsLateMessage(text string) bool {
	for _, kw := range v.LateKeywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ExtractReason derives a reason from a late message. The first reason keyword
// in list order wins and yields up to 50 characters starting at the match.
// Without a keyword, a message longer than 10 characters is the reason itself.
func (v Vocabulary) ExtractReason(text string) (string, bool) {
	for _, kw := range v.ReasonKeywords {
		if kw == "" {
			continue
		}
		idx := strings.Index(text, kw)
		if idx < 0 {
			continue
		}
		reason := strings.TrimSpace(truncateRunes(text[idx:], reasonWindow))
		return reason, reason != ""
	}

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) > implicitReasonLength {
		return trimmed, true
	}
	return "", false
}

// Preset looks up a canned reason by key.
func (v Vocabulary) Preset(key string) (Preset, bool) {
	for _, p := range v.Presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
