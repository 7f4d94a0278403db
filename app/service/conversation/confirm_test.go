package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimsCompletionPastTense(t *testing.T) {
	d := newRegexClaimDetector()

	for _, text := range []string{
		"Your appointment is booked for Tuesday at 2pm.",
		"The appointment has been confirmed with Sam.",
		"I've booked Bella in for a grooming session.",
		"I have cancelled your Thursday appointment.",
		"Done! You're all set for next Monday.",
		"Your appointment was rescheduled to 3pm.",
		"Booking confirmed, see you then!",
	} {
		assert.True(t, d.ClaimsCompletion(text), "should claim: %q", text)
	}
}

func TestOffersAreNotClaims(t *testing.T) {
	d := newRegexClaimDetector()

	for _, text := range []string{
		"I can book that for you, would Tuesday work?",
		"Would you like me to schedule a grooming appointment?",
		"Shall I cancel the Thursday slot?",
		"We offer grooming and vet checkups.",
		"Sam has an opening at 2pm on Tuesday.",
		"To book an appointment I need your phone number first.",
	} {
		assert.False(t, d.ClaimsCompletion(text), "should not claim: %q", text)
	}
}

func TestClaimNextToOfferSentence(t *testing.T) {
	d := newRegexClaimDetector()

	// The claim sentence stands on its own even when an offer follows.
	text := "Your appointment is booked for 2pm. Would you like me to add a reminder?"
	assert.True(t, d.ClaimsCompletion(text))
}

func TestRequiresTools(t *testing.T) {
	for _, text := range []string{
		"Can I book a grooming appointment for my dog?",
		"What times are available on Friday?",
		"I need to cancel my appointment.",
		"How much does a vet checkup cost?",
	} {
		assert.True(t, requiresTools(text), "should need tools: %q", text)
	}

	for _, text := range []string{
		"Hi there!",
		"Thanks, that's all I needed.",
	} {
		assert.False(t, requiresTools(text), "should not need tools: %q", text)
	}
}
