package calendar

import "strings"

// Keyword tier weights.
const (
	weightHigh   = 10.0
	weightMedium = 5.0
	weightLow    = 2.0

	// minClassifyScore is the score a category must reach to be chosen over
	// TypeOther.
	minClassifyScore = 2.0
)

type keywordTier struct {
	weight   float64
	keywords []string
}

type categoryKeywords struct {
	tag   TypeTag
	tiers []keywordTier
}

// categories is ordered by tie-break precedence. The high tier of each
// category holds its primary keywords; the lower tiers add weaker hints.
var categories = []categoryKeywords{
	{
		tag: TypeClientMeeting,
		tiers: []keywordTier{
			{weightHigh, []string{"client", "customer", "external", "meeting with"}},
			{weightMedium, []string{"prospect", "partner", "demo", "consultation"}},
			{weightLow, []string{"call", "visit"}},
		},
	},
	{
		tag: TypeInternal,
		tiers: []keywordTier{
			{weightHigh, []string{"team", "internal", "staff", "sync", "standup", "review"}},
			{weightMedium, []string{"stand-up", "all hands", "one on one", "1:1", "retrospective", "sprint"}},
			{weightLow, []string{"office", "discussion"}},
		},
	},
	{
		tag: TypePersonal,
		tiers: []keywordTier{
			{weightHigh, []string{"doctor", "dentist", "personal", "break", "lunch", "appointment"}},
			{weightMedium, []string{"gym", "vacation", "birthday", "family", "haircut"}},
			{weightLow, []string{"errand", "dinner"}},
		},
	},
	{
		tag: TypeAdministrative,
		tiers: []keywordTier{
			{weightHigh, []string{"admin", "paperwork", "report", "planning", "email"}},
			{weightMedium, []string{"invoice", "expense", "filing", "compliance"}},
			{weightLow, []string{"prep", "organize"}},
		},
	},
}

// Classify derives the type of an appointment from its title and
// description using weighted keyword scoring. It is deterministic and safe
// for concurrent use.
func Classify(title, description string) TypeTag {
	scores := Scores(title, description)

	best := TypeOther
	bestScore := 0.0
	for _, c := range categories {
		if s := scores[c.tag]; s > bestScore {
			best, bestScore = c.tag, s
		}
	}
	if bestScore < minClassifyScore {
		return TypeOther
	}
	return best
}

// Scores returns the per-category keyword score for the given text.
func Scores(title, description string) map[TypeTag]float64 {
	t := strings.ToLower(strings.TrimSpace(title))
	d := strings.ToLower(strings.TrimSpace(description))

	scores := make(map[TypeTag]float64, len(categories))
	for _, c := range categories {
		var score float64
		for _, tier := range c.tiers {
			for _, kw := range tier.keywords {
				score += keywordScore(t, d, kw, tier.weight)
			}
		}
		scores[c.tag] = score
	}
	return scores
}

func keywordScore(title, description, keyword string, weight float64) float64 {
	var score float64
	if title != "" && strings.Contains(title, keyword) {
		score += weight
		switch {
		case title == keyword:
			score += weight
		case strings.HasPrefix(title, keyword):
			score += weight / 2
		}
	}
	if description != "" && strings.Contains(description, keyword) {
		score += weight / 2
	}
	return score
}
