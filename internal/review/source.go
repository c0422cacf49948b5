package review

import (
	"context"
	"fmt"

	"github.com/conorfennell/ankibot/internal/domain"
	"go.uber.org/zap"
)

// Source decides which card comes next and how a rating reaches Anki.
// A Source belongs to one session.
type Source interface {
	Name() string
	// Begin is called once, after the due list is known and cached.
	Begin(ctx context.Context, deck string, due []domain.CardID) error
	// Card returns the card at position index (zero based).
	Card(ctx context.Context, index int) (domain.CardID, error)
	// Reveal is called when the user flips the card.
	Reveal(ctx context.Context, id domain.CardID) error
	Rate(ctx context.Context, id domain.CardID, rating domain.Rating) error
}

// Answerer submits a rating addressed by card id.
type Answerer interface {
	AnswerCard(ctx context.Context, id domain.CardID, rating domain.Rating) (bool, error)
}

// DirectSource walks the due list in the order it was fetched and rates each
// card by id. The Anki window is never touched.
type DirectSource struct {
	answerer Answerer
	due      []domain.CardID
}

func NewDirectSource(answerer Answerer) *DirectSource {
	return &DirectSource{answerer: answerer}
}

func (s *DirectSource) Name() string { return "direct" }

func (s *DirectSource) Begin(ctx context.Context, deck string, due []domain.CardID) error {
	s.due = append([]domain.CardID(nil), due...)
	return nil
}

func (s *DirectSource) Card(ctx context.Context, index int) (domain.CardID, error) {
	if index < 0 || index >= len(s.due) {
		return 0, ErrNoMoreCards
	}
	return s.due[index], nil
}

func (s *DirectSource) Reveal(ctx context.Context, id domain.CardID) error { return nil }

func (s *DirectSource) Rate(ctx context.Context, id domain.CardID, rating domain.Rating) error {
	ok, err := s.answerer.AnswerCard(ctx, id, rating)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("card %d not answered", id)
	}
	return nil
}

// GUI is the part of AnkiConnect that drives the Anki review window.
type GUI interface {
	GUIDeckReview(ctx context.Context, deck string) error
	GUIReviewActive(ctx context.Context) (bool, error)
	GUIShowQuestion(ctx context.Context) error
	GUIShowAnswer(ctx context.Context) error
	GUICurrentCard(ctx context.Context) (domain.CardID, error)
	GUIAnswerCard(ctx context.Context, rating domain.Rating) (bool, error)
}

// GUISource follows whatever card the Anki review window shows. Anki picks
// the order, so it can differ from the due list.
type GUISource struct {
	gui GUI
}

func NewGUISource(gui GUI) *GUISource {
	return &GUISource{gui: gui}
}

func (s *GUISource) Name() string { return "gui" }

func (s *GUISource) Begin(ctx context.Context, deck string, due []domain.CardID) error {
	if err := s.gui.GUIDeckReview(ctx, deck); err != nil {
		return err
	}
	active, err := s.gui.GUIReviewActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("review of %q did not start", deck)
	}
	return nil
}

func (s *GUISource) Card(ctx context.Context, index int) (domain.CardID, error) {
	active, err := s.gui.GUIReviewActive(ctx)
	if err != nil {
		return 0, err
	}
	if !active {
		return 0, ErrNoMoreCards
	}
	if err := s.gui.GUIShowQuestion(ctx); err != nil {
		return 0, err
	}
	return s.gui.GUICurrentCard(ctx)
}

func (s *GUISource) Reveal(ctx context.Context, id domain.CardID) error {
	return s.gui.GUIShowAnswer(ctx)
}

func (s *GUISource) Rate(ctx context.Context, id domain.CardID, rating domain.Rating) error {
	ok, err := s.gui.GUIAnswerCard(ctx, rating)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("card %d not answered", id)
	}
	return nil
}

// AutoSource uses the Anki window when a GUI review can be started and
// falls back to rating cards by id otherwise.
type AutoSource struct {
	gui    *GUISource
	direct *DirectSource
	active Source
	logger *zap.Logger
}

// GUIAnswerer is everything AutoSource needs from the client.
type GUIAnswerer interface {
	GUI
	Answerer
}

func NewAutoSource(client GUIAnswerer, logger *zap.Logger) *AutoSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSource{
		gui:    NewGUISource(client),
		direct: NewDirectSource(client),
		logger: logger,
	}
}

func (s *AutoSource) Name() string {
	if s.active == nil {
		return "auto"
	}
	return s.active.Name()
}

func (s *AutoSource) Begin(ctx context.Context, deck string, due []domain.CardID) error {
	if err := s.gui.Begin(ctx, deck, due); err != nil {
		s.logger.Info("gui review unavailable, rating cards directly", zap.Error(err))
		s.active = s.direct
		return s.direct.Begin(ctx, deck, due)
	}
	s.active = s.gui
	return nil
}

func (s *AutoSource) Card(ctx context.Context, index int) (domain.CardID, error) {
	return s.active.Card(ctx, index)
}

func (s *AutoSource) Reveal(ctx context.Context, id domain.CardID) error {
	return s.active.Reveal(ctx, id)
}

func (s *AutoSource) Rate(ctx context.Context, id domain.CardID, rating domain.Rating) error {
	return s.active.Rate(ctx, id, rating)
}

// Source modes accepted by NewSource.
const (
	ModeAuto   = "auto"
	ModeGUI    = "gui"
	ModeDirect = "direct"
)

// NewSource returns a fresh Source for one session in the given mode.
func NewSource(mode string, client GUIAnswerer, logger *zap.Logger) (Source, error) {
	switch mode {
	case ModeAuto, "":
		return NewAutoSource(client, logger), nil
	case ModeGUI:
		return NewGUISource(client), nil
	case ModeDirect:
		return NewDirectSource(client), nil
	default:
		return nil, fmt.Errorf("unknown review mode %q", mode)
	}
}
