// Package intent recognises the customer intents that change how a turn is
// handled.
package intent

import "strings"

type Intent string

const (
	General         Intent = "general"
	ClaimInitiation Intent = "claim_initiation"
)

// Classifier maps a customer message to an intent.
type Classifier interface {
	Classify(message string) Intent
}

// Rule binds trigger phrases to an intent.
type Rule struct {
	Intent  Intent
	Phrases []string
}

// PhraseClassifier matches whole messages against trigger phrases. Matching
// ignores case and surrounding or repeated whitespace; anything else must be
// an exact match.
type PhraseClassifier struct {
	phrases map[string]Intent
}

// DefaultRules recognises the claim-initiation phrase sent by the chat front end.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: ClaimInitiation, Phrases: []string{"I want to make a claim"}},
	}
}

// NewPhraseClassifier builds a classifier from rules. Earlier rules win when
// two rules share a phrase.
func NewPhraseClassifier(rules ...Rule) *PhraseClassifier {
	c := &PhraseClassifier{phrases: make(map[string]Intent)}
	for _, r := range rules {
		for _, p := range r.Phrases {
			key := normalize(p)
			if key == "" {
				continue
			}
			if _, exists := c.phrases[key]; !exists {
				c.phrases[key] = r.Intent
			}
		}
	}
	return c
}

func (c *PhraseClassifier) Classify(message string) Intent {
	if in, ok := c.phrases[normalize(message)]; ok {
		return in
	}
	return General
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
