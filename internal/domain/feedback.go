package domain

import (
	"math"
	"strings"
)

// EntityType names what a feedback thread is attached to.
type EntityType string

const (
	EntitySite    EntityType = "site"
	EntityArticle EntityType = "article"
	EntityPackage EntityType = "package"
	EntityEvent   EntityType = "event"
)

// ParseEntityType validates raw.
func ParseEntityType(raw string) (EntityType, bool) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(raw))); t {
	case EntitySite, EntityArticle, EntityPackage, EntityEvent:
		return t, true
	}
	return "", false
}

// Feedback is a rated comment left by a visitor.
type Feedback struct {
	ID      string   `json:"id" firestore:"-"`
	Name    string   `json:"name" firestore:"name"`
	Avatar  string   `json:"avatar,omitempty" firestore:"avatar,omitempty"`
	Rating  int      `json:"rating" firestore:"rating"`
	Comment string   `json:"comment" firestore:"comment"`
	Date    string   `json:"date" firestore:"date"`
	Likes   int      `json:"likes" firestore:"likes"`
	LikedBy []string `json:"likedBy" firestore:"likedBy"`
}

// ValidateFeedback enforces a 1-5 rating and a non-empty comment.
func ValidateFeedback(f Feedback) error {
	if f.Rating < 1 || f.Rating > 5 {
		return invalid("rating", "must be between 1 and 5")
	}
	if strings.TrimSpace(f.Comment) == "" {
		return invalid("comment", "is required")
	}
	if f.Likes < 0 {
		return invalid("likes", "must not be negative")
	}
	return nil
}

// HasLiked reports whether visitorID already liked f.
func (f Feedback) HasLiked(visitorID string) bool {
	for _, id := range f.LikedBy {
		if id == visitorID {
			return true
		}
	}
	return false
}

// ToggleLike adds or removes visitorID's like and returns the updated feedback.
func (f Feedback) ToggleLike(visitorID string) Feedback {
	if f.HasLiked(visitorID) {
		likedBy := make([]string, 0, len(f.LikedBy))
		for _, id := range f.LikedBy {
			if id != visitorID {
				likedBy = append(likedBy, id)
			}
		}
		f.LikedBy = likedBy
		f.Likes = max(f.Likes-1, 0)
		return f
	}
	f.LikedBy = append(append([]string(nil), f.LikedBy...), visitorID)
	f.Likes++
	return f
}

// FeedbackSummary aggregates a feedback thread.
type FeedbackSummary struct {
	Count         int     `json:"count"`
	AverageRating float64 `json:"averageRating"`
}

// SummarizeFeedback computes the count and the average rating rounded to one decimal.
func SummarizeFeedback(items []Feedback) FeedbackSummary {
	if len(items) == 0 {
		return FeedbackSummary{}
	}
	total := 0
	for _, f := range items {
		total += f.Rating
	}
	avg := float64(total) / float64(len(items))
	return FeedbackSummary{Count: len(items), AverageRating: math.Round(avg*10) / 10}
}
