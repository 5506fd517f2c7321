package chain

import (
	"strings"
	"time"
)

// expirationLayouts are the date formats seen on option pages and in
// contract-name derived dates.
var expirationLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, Jan 2, 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// ParseExpiration parses an expiration date in any supported layout and
// returns it at midnight in loc.
func ParseExpiration(text string, loc *time.Location) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range expirationLayouts {
		t, err := time.ParseInLocation(layout, text, loc)
		if err != nil {
			continue
		}
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// DaysToExpiration returns whole calendar days from now's local date to the
// expiration date. Unparseable dates and past expirations return 0.
//
// Days are counted on calendar dates rather than elapsed hours so DST
// transitions cannot shift the count.
func DaysToExpiration(text string, now time.Time) int {
	exp, ok := ParseExpiration(text, now.Location())
	if !ok {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)

	days := int(expDay.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
