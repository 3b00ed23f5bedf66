package signal

import (
	"math"
	"strings"
	"time"
)

var judgmentDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"02-01-2006T15:04:05",
}

// ParseJudgmentDate accepts the historical date formats found in the corpus.
// Slashes are normalized to dashes before matching.
func ParseJudgmentDate(value string) (time.Time, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, false
	}
	raw = strings.ReplaceAll(raw, "/", "-")

	for _, layout := range judgmentDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Recency computes exp(-age_years / half_life_years) for the judgment date.
// An unparseable date yields the configured unknown score and ageKnown=false.
func Recency(dateValue string, now time.Time, unknownScore, halfLifeYears float64) (score, ageYears float64, ageKnown bool) {
	parsed, ok := ParseJudgmentDate(dateValue)
	if !ok {
		return unknownScore, 0, false
	}

	age := now.Sub(parsed).Hours() / 24 / 365.25
	if age < 0 {
		age = 0
	}
	if halfLifeYears < 0.1 {
		halfLifeYears = 0.1
	}
	return math.Exp(-age / halfLifeYears), age, true
}
