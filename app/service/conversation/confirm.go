package conversation

import (
	"regexp"
	"strings"
)

// ConfirmationClaimDetector decides whether a reply asserts that an action
// already completed. Pluggable so the heuristic can be replaced without
// touching the router's state machine.
type ConfirmationClaimDetector interface {
	// ClaimsCompletion reports whether text contains a past-tense completion
	// claim ("your appointment is booked"). Future-tense offers ("I can book
	// that", "would you like me to schedule") must not trigger it.
	ClaimsCompletion(text string) bool
}

var _ ConfirmationClaimDetector = (*regexClaimDetector)(nil)

type regexClaimDetector struct {
	claims []*regexp.Regexp
	offers []*regexp.Regexp
}

// Phrases asserting a completed action. The verb must be in a completed
// form; "book" alone never matches.
var claimPatterns = []string{
	`(?i)\b(?:your|the)\s+appointment\s+(?:is|has\s+been|was)\s+(?:booked|confirmed|scheduled|rescheduled|cancell?ed|moved)\b`,
	`(?i)\bi(?:'ve| have)\s+(?:booked|confirmed|scheduled|rescheduled|cancell?ed)\b`,
	`(?i)\b(?:successfully|now)\s+(?:booked|confirmed|scheduled|rescheduled|cancell?ed)\b`,
	`(?i)\byou(?:'re| are)\s+(?:all\s+set|booked\s+in|confirmed)\b`,
	`(?i)\b(?:booking|appointment|reservation)\s+(?:is\s+)?confirmed\b`,
}

// Offer phrasing that may sit next to action verbs; a sentence matching one
// of these is an offer, not a claim.
var offerPatterns = []string{
	`(?i)\b(?:i\s+can|i\s+could|i(?:'d| would)\s+be\s+happy\s+to|shall\s+i|should\s+i|would\s+you\s+like\s+me\s+to|do\s+you\s+want\s+me\s+to|let\s+me\s+know\s+if)\b`,
}

func newRegexClaimDetector() *regexClaimDetector {
	d := &regexClaimDetector{}
	for _, p := range claimPatterns {
		d.claims = append(d.claims, regexp.MustCompile(p))
	}
	for _, p := range offerPatterns {
		d.offers = append(d.offers, regexp.MustCompile(p))
	}
	return d
}

func (d *regexClaimDetector) ClaimsCompletion(text string) bool {
	for _, sentence := range splitSentences(text) {
		claimed := false
		for _, re := range d.claims {
			if re.MatchString(sentence) {
				claimed = true
				break
			}
		}
		if !claimed {
			continue
		}

		offer := false
		for _, re := range d.offers {
			if re.MatchString(sentence) {
				offer = true
				break
			}
		}
		if !offer {
			return true
		}
	}

	return false
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

// toolIntentPattern flags user messages that realistically need tool calls:
// anything about appointments, services, availability or staff.
var toolIntentPattern = regexp.MustCompile(
	`(?i)\b(?:appointment|book|booking|schedul\w*|reschedul\w*|cancel\w*|availab\w*|open\s+slots?|service|grooming|groomer|vet|price|location|staff)\b`,
)

func requiresTools(userText string) bool {
	return toolIntentPattern.MatchString(userText)
}
