package review

import (
	"context"
	"fmt"

	"github.com/conorfennell/ankibot/internal/cardtext"
	"github.com/conorfennell/ankibot/internal/domain"
)

// FieldMap names the note fields that feed each part of a card view.
type FieldMap struct {
	Term         string
	Reading      string
	Kana         string
	Example      string
	PartOfSpeech string
	Meaning      string
	Translation  string
}

// DefaultFieldMap matches the note type of the Core 2000 Japanese deck.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Term:         "Vocabulary-Kanji",
		Reading:      "Vocabulary-Furigana",
		Kana:         "Vocabulary-Kana",
		Example:      "Expression",
		PartOfSpeech: "Vocabulary-Pos",
		Meaning:      "Vocabulary-English",
		Translation:  "Sentence-English",
	}
}

// QuestionView is the front of a card.
type QuestionView struct {
	SessionID    string
	Card         domain.CardID
	Position     int
	Total        int
	Term         string
	Reading      string
	Kana         string
	Example      string
	PartOfSpeech string
	Images       []string
}

// AnswerView is the back of a card together with the rating choices.
type AnswerView struct {
	SessionID    string
	Card         domain.CardID
	Position     int
	Total        int
	Meaning      string
	Translation  string
	PartOfSpeech string
	Ratings      []domain.Rating
}

func (m FieldMap) question(fields domain.FieldSet) QuestionView {
	term := cardtext.Parse(fields.Value(m.Term))
	example := cardtext.Parse(fields.Value(m.Example))
	images := append([]string(nil), term.Images...)
	images = append(images, example.Images...)
	return QuestionView{
		Term:         term.Text,
		Reading:      cardtext.Text(fields.Value(m.Reading)),
		Kana:         cardtext.Text(fields.Value(m.Kana)),
		Example:      example.Text,
		PartOfSpeech: cardtext.Text(fields.Value(m.PartOfSpeech)),
		Images:       images,
	}
}

func (m FieldMap) answer(fields domain.FieldSet) AnswerView {
	return AnswerView{
		Meaning:      cardtext.Text(fields.Value(m.Meaning)),
		Translation:  cardtext.Text(fields.Value(m.Translation)),
		PartOfSpeech: cardtext.Text(fields.Value(m.PartOfSpeech)),
		Ratings:      domain.Ratings,
	}
}

// NoticeKind classifies the messages a session sends outside card views.
type NoticeKind int

const (
	NoticeQueued NoticeKind = iota + 1
	NoticeNoCards
	NoticeRated
	NoticeRatingFailed
	NoticeTimeout
	NoticeCancelled
	NoticeUnavailable
	NoticeRejected
	NoticeFailure
	NoticeComplete
)

// Notice is a human-readable message for the user.
type Notice struct {
	Kind NoticeKind
	Text string
}

func queuedNotice(n int) Notice {
	return Notice{Kind: NoticeQueued, Text: fmt.Sprintf("📚 %d cards ready for review.", n)}
}

func ratedNotice(r domain.Rating) Notice {
	return Notice{Kind: NoticeRated, Text: fmt.Sprintf("✅ Marked as %s!", r)}
}

func ratingFailedNotice(r domain.Rating) Notice {
	return Notice{Kind: NoticeRatingFailed, Text: fmt.Sprintf("⚠️ Anki did not accept %s for this card. Moving on.", r)}
}

var (
	noCardsNotice     = Notice{Kind: NoticeNoCards, Text: "🎉 No cards due today!"}
	timeoutNotice     = Notice{Kind: NoticeTimeout, Text: "🛑 Review timed out due to inactivity. Ending session."}
	cancelledNotice   = Notice{Kind: NoticeCancelled, Text: "🛑 Review cancelled."}
	unavailableNotice = Notice{Kind: NoticeUnavailable, Text: "❌ Anki is not reachable. Is AnkiConnect running? Ending session."}
	rejectedNotice    = Notice{Kind: NoticeRejected, Text: "❌ Anki rejected the request. Ending session."}
	failureNotice     = Notice{Kind: NoticeFailure, Text: "❌ Something went wrong loading this card. Ending session."}
	completeNotice    = Notice{Kind: NoticeComplete, Text: "🎯 Review complete!"}
)

// Presenter renders a session to the user. Implementations decide how:
// chat embeds, terminal lines or anything else.
type Presenter interface {
	Notify(ctx context.Context, n Notice) error
	ShowQuestion(ctx context.Context, v QuestionView) error
	// ShowAnswer shows the back of the card and offers the rating controls.
	ShowAnswer(ctx context.Context, v AnswerView) error
	// DisableControls turns off every pending button of the session.
	DisableControls(ctx context.Context) error
}
