package core

import "strings"

// Tone is the selected grumpiness level. It only changes how a finding is
// phrased, never whether it is produced.
type Tone string

// Supported tones.
const (
	ToneMild      Tone = "mild"
	ToneRude      Tone = "rude"
	ToneSarcastic Tone = "sarcastic"
)

// Tones lists the supported tones in display order.
func Tones() []Tone {
	return []Tone{ToneMild, ToneRude, ToneSarcastic}
}

// ParseTone converts a grumpiness level, case-insensitively.
// Returns ToneMild and false for unknown values.
func ParseTone(s string) (Tone, bool) {
	switch Tone(strings.ToLower(strings.TrimSpace(s))) {
	case ToneMild:
		return ToneMild, true
	case ToneRude:
		return ToneRude, true
	case ToneSarcastic:
		return ToneSarcastic, true
	default:
		return ToneMild, false
	}
}
