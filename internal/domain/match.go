package domain

import (
	"sort"
	"strings"
	"time"
)

// Match is a fixture in the club calendar.
type Match struct {
	ID               string   `json:"id" firestore:"-"`
	HomeTeam         string   `json:"homeTeam" firestore:"homeTeam"`
	AwayTeam         string   `json:"awayTeam" firestore:"awayTeam"`
	Date             string   `json:"date" firestore:"date"`
	Time             string   `json:"time" firestore:"time"`
	Competition      string   `json:"competition" firestore:"competition"`
	Stadium          string   `json:"stadium" firestore:"stadium"`
	Broadcast        string   `json:"broadcast" firestore:"broadcast"`
	TicketsAvailable bool     `json:"ticketsAvailable" firestore:"ticketsAvailable"`
	TicketPrice      *float64 `json:"ticketPrice,omitempty" firestore:"ticketPrice,omitempty"`
	IsHome           bool     `json:"isHome" firestore:"isHome"`
}

// Kickoff returns the scheduled start in the club's time zone. Matches without a valid time start
// at midnight.
func (m Match) Kickoff() (time.Time, bool) {
	day, err := time.ParseInLocation(DateLayout, m.Date, Location)
	if err != nil {
		return time.Time{}, false
	}
	if clock, err := time.Parse(TimeLayout, m.Time); err == nil {
		day = day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	}
	return day, true
}

// Opponent returns the team the club faces.
func (m Match) Opponent() string {
	if m.IsHome {
		return m.AwayTeam
	}
	return m.HomeTeam
}

// ValidateMatch rejects fixtures that cannot be scheduled.
func ValidateMatch(m Match) error {
	if strings.TrimSpace(m.HomeTeam) == "" {
		return invalid("homeTeam", "is required")
	}
	if strings.TrimSpace(m.AwayTeam) == "" {
		return invalid("awayTeam", "is required")
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	if m.Time != "" {
		if _, err := time.Parse(TimeLayout, m.Time); err != nil {
			return invalid("time", "must be HH:MM")
		}
	}
	if m.TicketPrice != nil && *m.TicketPrice < 0 {
		return invalid("ticketPrice", "must not be negative")
	}
	return nil
}

// UpcomingMatches returns matches dated today or later, earliest first.
func UpcomingMatches(matches []Match, now time.Time) []Match {
	today := Today(now)
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Date >= today {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// NextMatch returns the earliest upcoming match.
func NextMatch(matches []Match, now time.Time) (Match, bool) {
	upcoming := UpcomingMatches(matches, now)
	if len(upcoming) == 0 {
		return Match{}, false
	}
	return upcoming[0], true
}

// HomeMatches filters fixtures played at the club's stadium.
func HomeMatches(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.IsHome {
			out = append(out, m)
		}
	}
	return out
}
