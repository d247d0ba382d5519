package main

import (
	"os"
	"strings"
)

var defaultSpamPhrases = []string{
	"buy now", "special offer", "discount", "viagra", "casino",
	"lottery", "winner", "free money", "earn money", "best price",
	"bitcoin", "investment opportunity", "enlargement", "pharmacy",
	"best rates", "no prescription", "online pharmacy", "cheap",
}

// SpamFilter scores contact messages against a phrase list and a URL
// count. Phrase list and thresholds are tunable through the environment.
type SpamFilter struct {
	Phrases    []string
	ScoreLimit int
	URLLimit   int
}

var spamFilter = NewSpamFilterFromEnv()

func NewSpamFilterFromEnv() *SpamFilter {
	phrases := defaultSpamPhrases
	if raw := strings.TrimSpace(os.Getenv("SPAM_PHRASES")); raw != "" {
		parts := strings.Split(raw, ",")
		custom := make([]string, 0, len(parts))
		for _, part := range parts {
			phrase := strings.TrimSpace(part)
			if phrase == "" {
				continue
			}
			custom = append(custom, phrase)
		}
		if len(custom) > 0 {
			phrases = custom
		}
	}
	return &SpamFilter{
		Phrases:    phrases,
		ScoreLimit: getIntEnv("SPAM_SCORE_THRESHOLD", 2),
		URLLimit:   getIntEnv("SPAM_URL_THRESHOLD", 5),
	}
}

// Score counts configured phrases found case-insensitively in the
// combined message and subject text, and literal URL prefixes.
func (s *SpamFilter) Score(message, subject string) (score int, urlCount int) {
	combined := strings.ToLower(message + " " + subject)
	for _, phrase := range s.Phrases {
		if strings.Contains(combined, strings.ToLower(phrase)) {
			score++
		}
	}
	urlCount = strings.Count(combined, "http://") + strings.Count(combined, "https://")
	return score, urlCount
}

func (s *SpamFilter) IsSpam(message, subject string) bool {
	score, urls := s.Score(message, subject)
	return score > s.ScoreLimit || urls > s.URLLimit
}
