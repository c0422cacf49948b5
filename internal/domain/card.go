package domain

import (
	"fmt"
	"strconv"
)

// CardID is the identifier AnkiConnect assigns to a card.
type CardID int64

func (id CardID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// FieldSet maps a note field name to its value.
// A FieldSet is never modified after it has been fetched.
type FieldSet map[string]string

// Value returns the named field, or "" when the note has no such field.
func (f FieldSet) Value(name string) string {
	return f[name]
}

// Rating is the user's ease answer for a card.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// Ratings lists every valid rating in ease order.
var Ratings = []Rating{Again, Hard, Good, Easy}

// IsValid reports whether r is one of the four ease levels.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating converts "1".."4" or a rating name into a Rating.
func ParseRating(s string) (Rating, error) {
	if n, err := strconv.Atoi(s); err == nil {
		r := Rating(n)
		if !r.IsValid() {
			return 0, fmt.Errorf("rating out of range: %d", n)
		}
		return r, nil
	}
	for _, r := range Ratings {
		if ratingNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}
