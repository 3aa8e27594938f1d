package asr

import (
	"regexp"
	"strings"
)

// Segment is one timed span of recognized text with its confidence metrics.
// Start and End are seconds relative to the start of the sample window the
// engine was given. A segment is created fresh on every engine invocation;
// only IsFixed is mutated afterwards, when the fixation algorithm promotes it.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogProb       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	IsFixed          bool    `json:"-"`
}

// Accepted reports whether the segment's confidence metrics pass the
// recognition filter. A segment needs non-empty text, all three metrics
// inside their hard bounds, and at least one metric in its strong range.
func (s *Segment) Accepted() bool {
	return IsAccepted(s.Text, s.AvgLogProb, s.CompressionRatio, s.NoSpeechProb)
}

// IsAccepted applies the confidence filter to raw metric values.
func IsAccepted(text string, avgLogProb, compressionRatio, noSpeechProb float64) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if avgLogProb < -0.5 {
		return false
	}
	if compressionRatio < 0.5 || compressionRatio > 2.0 {
		return false
	}
	if noSpeechProb > 0.2 {
		return false
	}
	if avgLogProb > -0.7 {
		return true
	}
	if compressionRatio > 0.8 && compressionRatio < 1.4 {
		return true
	}
	if noSpeechProb < 0.1 {
		return true
	}
	return false
}

// sentenceEnd matches text ending in a non-wide-script letter followed by a
// sentence terminator, optionally with trailing spaces. Wide-script text
// (e.g. Japanese) never matches, so those segments are only fixed by the
// count and trailing-silence rules.
var sentenceEnd = regexp.MustCompile(`[a-zA-Z][.!?] *$`)

// EndsSentence reports whether text ends at a sentence boundary.
func EndsSentence(text string) bool {
	return sentenceEnd.MatchString(text)
}

// SplitPoint chooses the fixation cut-point for the current cycle: the
// largest index k such that current[0..k] can be promoted to fixed, or -1
// when nothing should be fixed yet. bufferSeconds is the duration of the
// audio window the segments were recognized from.
//
// The last two segments are normally kept revisable because the engine
// commonly rewrites recent tail text on the next pass; trailing silence
// longer than 1.2 s overrides that, since no further revision is coming.
func SplitPoint(current []Segment, bufferSeconds float64) int {
	n := len(current)

	if n > 0 && bufferSeconds-current[n-1].End > 1.2 {
		return n - 1
	}

	switch {
	case n <= 1:
		return -1
	case n == 2:
		if EndsSentence(current[0].Text) && EndsSentence(current[1].Text) &&
			bufferSeconds-current[1].End > 0.4 {
			return 0
		}
		return -1
	default:
		return n - 3
	}
}

// JoinTexts concatenates segment texts with single spaces, used to build
// the priming prompt for the next recognition cycle.
func JoinTexts(segments []Segment) string {
	if len(segments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
