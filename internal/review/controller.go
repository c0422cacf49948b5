// Package review runs flashcard review sessions against AnkiConnect.
//
// A session walks the due cards of one deck in order. Each card shows its
// question, waits for the user to flip it, shows the answer with rating
// controls, waits for a rating and submits it. Every wait is bounded by a
// timeout, and a timeout ends the whole session.
package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conorfennell/ankibot/internal/ankiconnect"
	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout is how long each phase waits for the user.
const DefaultTimeout = 300 * time.Second

// Client is the part of the flashcard service a session needs directly.
type Client interface {
	FieldFetcher
	FindDueCards(ctx context.Context, deck string) ([]domain.CardID, error)
}

// Settings configures one session.
type Settings struct {
	Owner   string
	Deck    string
	Timeout time.Duration
	Fields  FieldMap
}

// Controller owns one review session: its due list, position, phase and cache.
type Controller struct {
	id        string
	settings  Settings
	client    Client
	source    Source
	presenter Presenter
	observers []Observer
	cache     *Cache
	gate      *Gate
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewController creates a session. Nothing happens until Run is called.
func NewController(settings Settings, client Client, source Source, presenter Presenter, logger *zap.Logger, observers ...Observer) *Controller {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.Fields == (FieldMap{}) {
		settings.Fields = DefaultFieldMap()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Controller{
		id:        id,
		settings:  settings,
		client:    client,
		source:    source,
		presenter: presenter,
		observers: observers,
		cache:     NewCache(client),
		gate:      NewGate(settings.Owner),
		logger: logger.With(
			zap.String("session_id", id),
			zap.String("deck", settings.Deck),
		),
		state: Idle,
	}
}

func (c *Controller) ID() string { return c.id }

// Gate is where frontends deliver this session's button presses.
func (c *Controller) Gate() *Gate { return c.gate }

func (c *Controller) Cache() *Cache { return c.cache }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the session to Complete or Aborted and returns its summary.
// It blocks while waiting for the user.
func (c *Controller) Run(ctx context.Context) Result {
	res := Result{
		SessionID: c.id,
		Owner:     c.settings.Owner,
		Deck:      c.settings.Deck,
		StartedAt: time.Now(),
	}
	c.logger.Info("review session starting")

	due, err := c.client.FindDueCards(ctx, c.settings.Deck)
	if err != nil {
		return c.fail(ctx, res, ReasonServiceFailure, err)
	}
	res.Total = len(due)
	if len(due) == 0 {
		c.notify(ctx, noCardsNotice)
		res.Reason = ReasonNoDueCards
		return c.finish(res, Aborted, 0, 0)
	}

	start := time.Now()
	if err := c.cache.BulkLoad(ctx, due); err != nil {
		return c.fail(ctx, res, ReasonServiceFailure, err)
	}
	c.logger.Debug("card fields cached", zap.Int("cards", c.cache.Len()), zap.Duration("duration", time.Since(start)))

	c.notify(ctx, queuedNotice(len(due)))

	if err := c.source.Begin(ctx, c.settings.Deck, due); err != nil {
		return c.fail(ctx, res, ReasonServiceFailure, err)
	}
	res.Source = c.source.Name()

	for i := range due {
		id, err := c.source.Card(ctx, i)
		if errors.Is(err, ErrNoMoreCards) {
			break
		}
		if err != nil {
			return c.fail(ctx, res, ReasonServiceFailure, err)
		}

		submitted, rating, done := c.reviewCard(ctx, &res, id, i)
		if done {
			return res
		}
		res.Reviewed++
		if !submitted {
			res.Failed++
		}
		c.logger.Debug("card reviewed", zap.Stringer("card", id), zap.Stringer("rating", rating), zap.Bool("submitted", submitted))
	}

	c.notify(ctx, completeNotice)
	return c.finish(res, Complete, 0, 0)
}

// reviewCard runs one card through Question, Answer and Rated. When done is
// true the session has already been finished and res holds the outcome.
func (c *Controller) reviewCard(ctx context.Context, res *Result, id domain.CardID, index int) (submitted bool, rating domain.Rating, done bool) {
	position := index + 1
	start := time.Now()

	fields, err := c.cache.Ensure(ctx, id)
	if err != nil {
		*res = c.fail(ctx, *res, ReasonServiceFailure, err)
		return false, 0, true
	}
	c.transition(AwaitingQuestionAck, id, position)

	q := c.settings.Fields.question(fields)
	q.SessionID, q.Card, q.Position, q.Total = c.id, id, position, res.Total
	flipWait := c.gate.Open(ActionFlip)
	if err := c.presenter.ShowQuestion(ctx, q); err != nil {
		flipWait.Cancel()
		*res = c.fail(ctx, *res, ReasonPresentation, err)
		return false, 0, true
	}
	if _, err := flipWait.Wait(ctx, c.settings.Timeout); err != nil {
		*res = c.expire(ctx, *res, id, position, err)
		return false, 0, true
	}

	if err := c.source.Reveal(ctx, id); err != nil {
		*res = c.fail(ctx, *res, ReasonServiceFailure, err)
		return false, 0, true
	}
	fields, err = c.cache.Ensure(ctx, id)
	if err != nil {
		*res = c.fail(ctx, *res, ReasonServiceFailure, err)
		return false, 0, true
	}
	c.transition(AwaitingAnswerAck, id, position)

	a := c.settings.Fields.answer(fields)
	a.SessionID, a.Card, a.Position, a.Total = c.id, id, position, res.Total
	rateWait := c.gate.Open(ActionRate)
	if err := c.presenter.ShowAnswer(ctx, a); err != nil {
		rateWait.Cancel()
		*res = c.fail(ctx, *res, ReasonPresentation, err)
		return false, 0, true
	}
	// The answer view carries the rating controls, so no separate
	// acknowledgment sits between showing the answer and accepting a rating.
	c.transition(AwaitingRating, id, position)

	act, err := rateWait.Wait(ctx, c.settings.Timeout)
	if err != nil {
		*res = c.expire(ctx, *res, id, position, err)
		return false, 0, true
	}
	c.transition(Advancing, id, position)

	submitted = true
	if err := c.source.Rate(ctx, id, act.Rating); err != nil {
		submitted = false
		c.logger.Warn("rating not accepted",
			zap.Stringer("card", id),
			zap.Stringer("rating", act.Rating),
			zap.Error(errors.Join(ErrRatingSubmissionFailed, err)),
		)
		c.notify(ctx, ratingFailedNotice(act.Rating))
	} else {
		c.notify(ctx, ratedNotice(act.Rating))
	}

	rated := Rated{
		SessionID: c.id,
		Card:      id,
		Position:  position,
		Rating:    act.Rating,
		Submitted: submitted,
		Fields:    fields,
		At:        time.Now(),
	}
	for _, o := range c.observers {
		o.OnRated(rated)
	}
	c.logger.Info("card done", zap.Int("position", position), zap.Duration("duration", time.Since(start)))
	return submitted, act.Rating, false
}

// expire ends the session after a wait on the gate failed.
func (c *Controller) expire(ctx context.Context, res Result, id domain.CardID, position int, err error) Result {
	// ctx may already be done; the cleanup must still reach the user.
	cleanup := context.WithoutCancel(ctx)
	if derr := c.presenter.DisableControls(cleanup); derr != nil {
		c.logger.Warn("failed to disable controls", zap.Error(derr))
	}
	if errors.Is(err, ErrInteractionTimeout) {
		c.logger.Warn("review timed out", zap.Stringer("card", id), zap.Duration("timeout", c.settings.Timeout))
		c.notify(cleanup, timeoutNotice)
		res.Reason = ReasonTimeout
	} else {
		c.logger.Info("review cancelled", zap.Stringer("card", id), zap.Error(err))
		c.notify(cleanup, cancelledNotice)
		res.Reason = ReasonCancelled
	}
	res.Err = err
	return c.finish(res, Aborted, id, position)
}

// fail reports an unrecoverable error once and aborts the session. A service
// call cut short by ctx counts as a cancellation.
func (c *Controller) fail(ctx context.Context, res Result, reason string, err error) Result {
	cleanup := context.WithoutCancel(ctx)
	if ctx.Err() != nil && reason == ReasonServiceFailure {
		c.logger.Info("review cancelled", zap.Error(err))
		c.notify(cleanup, cancelledNotice)
		res.Reason = ReasonCancelled
		res.Err = err
		return c.finish(res, Aborted, 0, 0)
	}
	c.logger.Error("review aborted", zap.String("reason", reason), zap.Error(err))
	switch {
	case reason == ReasonPresentation:
		// The presenter is what failed; there is nobody to tell.
	case errors.Is(err, ankiconnect.ErrServiceUnavailable):
		c.notify(cleanup, unavailableNotice)
	case errors.Is(err, ankiconnect.ErrRequestRejected):
		c.notify(cleanup, rejectedNotice)
	default:
		c.notify(cleanup, failureNotice)
	}
	res.Reason = reason
	res.Err = err
	return c.finish(res, Aborted, 0, 0)
}

func (c *Controller) finish(res Result, to State, id domain.CardID, position int) Result {
	c.transition(to, id, position)
	res.State = to
	res.EndedAt = time.Now()
	if res.Source == "" {
		res.Source = c.source.Name()
	}
	c.logger.Info("review session finished",
		zap.Stringer("state", to),
		zap.String("reason", res.Reason),
		zap.Int("reviewed", res.Reviewed),
		zap.Int("total", res.Total),
		zap.Duration("duration", res.EndedAt.Sub(res.StartedAt)),
	)
	for _, o := range c.observers {
		o.OnFinished(res)
	}
	return res
}

func (c *Controller) transition(to State, id domain.CardID, position int) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	t := Transition{SessionID: c.id, From: from, To: to, Card: id, Position: position, At: time.Now()}
	for _, o := range c.observers {
		o.OnTransition(t)
	}
}

func (c *Controller) notify(ctx context.Context, n Notice) {
	if err := c.presenter.Notify(ctx, n); err != nil {
		c.logger.Warn("failed to send notice", zap.Int("kind", int(n.Kind)), zap.Error(err))
	}
}
