package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
)

var (
	// ErrInteractionTimeout is returned by Gate.Await when nobody answered in time.
	ErrInteractionTimeout = errors.New("interaction timed out")
	// ErrUnauthorizedActor is returned by Gate.Offer for anyone but the session owner.
	ErrUnauthorizedActor = errors.New("actor does not own this review")
	// ErrNotAwaiting is returned by Gate.Offer when the gate is not waiting for that action.
	ErrNotAwaiting = errors.New("review is not waiting for this action")
	// ErrRatingSubmissionFailed marks a rating the flashcard service did not accept.
	ErrRatingSubmissionFailed = errors.New("rating submission failed")
	// ErrNoMoreCards is returned by a Source whose queue ran out before the due count.
	ErrNoMoreCards = errors.New("no more cards to review")
	// ErrCardNotFound means the flashcard service returned no fields for a card.
	ErrCardNotFound = errors.New("card not found")
)

// State is a Controller state.
type State int

const (
	Idle State = iota
	AwaitingQuestionAck
	AwaitingAnswerAck
	AwaitingRating
	Advancing
	Complete
	Aborted
)

var stateNames = [...]string{
	Idle:                "idle",
	AwaitingQuestionAck: "awaiting_question_ack",
	AwaitingAnswerAck:   "awaiting_answer_ack",
	AwaitingRating:      "awaiting_rating",
	Advancing:           "advancing",
	Complete:            "complete",
	Aborted:             "aborted",
}

func (s State) String() string {
	if s >= Idle && s <= Aborted {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Complete || s == Aborted
}

// Abort reasons recorded in Result.Reason.
const (
	ReasonNoDueCards     = "no due cards"
	ReasonTimeout        = "timeout"
	ReasonCancelled      = "cancelled"
	ReasonServiceFailure = "service failure"
	ReasonPresentation   = "presentation failure"
)

// Transition is one state change of a session.
type Transition struct {
	SessionID string
	From      State
	To        State
	Card      domain.CardID
	Position  int
	At        time.Time
}

// Rated describes one rating the user gave, whether or not Anki accepted it.
type Rated struct {
	SessionID string
	Card      domain.CardID
	Position  int
	Rating    domain.Rating
	Submitted bool
	Fields    domain.FieldSet
	At        time.Time
}

// Result summarizes a finished session.
type Result struct {
	SessionID string
	Owner     string
	Deck      string
	Source    string
	State     State
	Reason    string
	Err       error
	Total     int
	Reviewed  int
	Failed    int
	StartedAt time.Time
	EndedAt   time.Time
}

// Observer is told about everything a Controller does. Calls happen on the
// session goroutine, in order.
type Observer interface {
	OnTransition(t Transition)
	OnRated(r Rated)
	OnFinished(res Result)
}
