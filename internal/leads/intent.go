package leads

import "strings"

// bookingPhrases is the contractual phrase set for booking-intent detection.
// Matching is plain substring containment over case-folded text; every phrase
// here must independently trigger a positive result.
var bookingPhrases = []string{
	"i'll take it",
	"book it",
	"confirm",
	"sounds good",
	"let's do it",
	"i want it",
	"i'm interested",
	"sign me up",
	"callback",
	"call me back",
	"have dispatch call",
	"speak to dispatch",
	"talk to dispatch",
	"interested in the load",
	"want to book",
}

// DetectBookingIntent reports whether the given call text contains any
// booking-intent phrase. Pure function: no state, no I/O.
func DetectBookingIntent(text string) bool {
	folded := strings.ToLower(text)
	for _, phrase := range bookingPhrases {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}
