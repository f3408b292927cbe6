package leads

import (
	"strings"
	"testing"
)

func TestDetectBookingIntentEachPhraseTriggers(t *testing.T) {
	for _, phrase := range bookingPhrases {
		t.Run(phrase, func(t *testing.T) {
			if !DetectBookingIntent(phrase) {
				t.Fatalf("phrase %q alone did not trigger", phrase)
			}
			upper := strings.ToUpper(phrase)
			if !DetectBookingIntent(upper) {
				t.Fatalf("upper-cased phrase %q did not trigger", upper)
			}
			embedded := "caller: well, " + phrase + " i guess"
			if !DetectBookingIntent(embedded) {
				t.Fatalf("embedded phrase %q did not trigger", embedded)
			}
		})
	}
}

func TestDetectBookingIntentNegative(t *testing.T) {
	cases := []string{
		"",
		"the rate is too low for that lane",
		"agent: thanks for calling, have a nice day",
		"i will think about it and get back to you never",
	}
	for _, text := range cases {
		if DetectBookingIntent(text) {
			t.Errorf("text %q triggered intent unexpectedly", text)
		}
	}
}
