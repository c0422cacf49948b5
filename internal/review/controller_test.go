package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/ankibot/internal/ankiconnect"
	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const owner = "user-1"

func newSession(t *testing.T, client *fakeClient, p *scriptedPresenter, timeout time.Duration) (*Controller, *recordingObserver) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	obs := &recordingObserver{}
	c := NewController(
		Settings{Owner: owner, Deck: "Core 2000", Timeout: timeout},
		client,
		NewDirectSource(client),
		p,
		logger,
		obs,
	)
	p.attach(c)
	return c, obs
}

// cooperative answers every question with a flip and every answer with rating.
func cooperative(rating domain.Rating) *scriptedPresenter {
	return &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action { return []Action{flip(owner)} },
		onAnswer:   func(v AnswerView) []Action { return []Action{rate(owner, rating)} },
	}
}

func TestControllerReviewsCardsInFetchOrder(t *testing.T) {
	client := newFakeClient(101, 102, 103)
	p := cooperative(domain.Good)
	c, obs := newSession(t, client, p, time.Second)

	res := c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Reviewed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "direct", res.Source)
	assert.Equal(t, Complete, c.State())

	want := []domain.CardID{101, 102, 103}
	assert.Equal(t, want, p.shown("question"))
	assert.Equal(t, want, p.shown("answer"))
	assert.Equal(t, want, client.answered)
	assert.Equal(t, []domain.Rating{domain.Good, domain.Good, domain.Good}, client.ratings)

	require.Len(t, obs.finished, 1)
	assert.Equal(t, res.SessionID, obs.finished[0].SessionID)
	assert.Len(t, obs.rated, 3)
}

func TestControllerScenarioTwoCards(t *testing.T) {
	client := newFakeClient(101, 102)
	p := cooperative(domain.Good)
	c, _ := newSession(t, client, p, time.Second)

	res := c.Run(context.Background())
	p.wg.Wait()

	require.Equal(t, Complete, res.State)

	var got []string
	for _, e := range p.snapshot() {
		if e.kind == "notice" {
			continue
		}
		got = append(got, e.kind+":"+e.card.String())
	}
	assert.Equal(t, []string{"question:101", "answer:101", "question:102", "answer:102"}, got)
	assert.Equal(t, []NoticeKind{NoticeQueued, NoticeRated, NoticeRated, NoticeComplete}, p.notices())
}

func TestControllerCachesFieldsBeforeViews(t *testing.T) {
	client := newFakeClient(101, 102)
	p := cooperative(domain.Easy)
	c, _ := newSession(t, client, p, time.Second)

	c.Run(context.Background())
	p.wg.Wait()

	assert.Zero(t, p.uncached)
	// One bulk fetch; every later lookup is served from the cache.
	assert.Equal(t, [][]domain.CardID{{101, 102}}, client.calls())
}

func TestControllerPhaseSequence(t *testing.T) {
	client := newFakeClient(101, 102)
	p := cooperative(domain.Hard)
	c, obs := newSession(t, client, p, time.Second)

	c.Run(context.Background())
	p.wg.Wait()

	var states []State
	for _, tr := range obs.transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{
		AwaitingQuestionAck, AwaitingAnswerAck, AwaitingRating, Advancing,
		AwaitingQuestionAck, AwaitingAnswerAck, AwaitingRating, Advancing,
		Complete,
	}, states)
	assert.Equal(t, Idle, obs.transitions[0].From)

	require.Len(t, obs.rated, 2)
	assert.Equal(t, domain.CardID(101), obs.rated[0].Card)
	assert.Equal(t, domain.Hard, obs.rated[0].Rating)
	assert.True(t, obs.rated[0].Submitted)
	assert.Equal(t, 2, obs.rated[1].Position)
}

func TestControllerAcceptsPressWhileViewIsRendering(t *testing.T) {
	client := newFakeClient(101)
	p := cooperative(domain.Easy)
	p.inline = true
	c, _ := newSession(t, client, p, 200*time.Millisecond)

	res := c.Run(context.Background())

	assert.Equal(t, Complete, res.State, res.Reason)
	assert.Equal(t, []error{nil, nil}, p.offerErrs)
	assert.Equal(t, []domain.Rating{domain.Easy}, client.ratings)
}

func TestControllerNoDueCards(t *testing.T) {
	client := newFakeClient()
	p := cooperative(domain.Good)
	c, _ := newSession(t, client, p, time.Second)

	res := c.Run(context.Background())

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonNoDueCards, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, []NoticeKind{NoticeNoCards}, p.notices())
	assert.Empty(t, p.shown("question"))
	assert.Empty(t, client.calls())
}

func TestControllerRatingFailureIsNotFatal(t *testing.T) {
	client := newFakeClient(101, 102)
	client.answerErr[101] = errors.New("no active card")
	p := cooperative(domain.Good)
	c, obs := newSession(t, client, p, time.Second)

	res := c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 2, res.Reviewed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []domain.CardID{101, 102}, p.shown("question"))
	assert.Contains(t, p.notices(), NoticeRatingFailed)

	require.Len(t, obs.rated, 2)
	assert.False(t, obs.rated[0].Submitted)
	assert.True(t, obs.rated[1].Submitted)
}

func TestControllerTimeoutOnAnswer(t *testing.T) {
	client := newFakeClient(101, 102)
	p := &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action { return []Action{flip(owner)} },
	}
	c, obs := newSession(t, client, p, 50*time.Millisecond)

	res := c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.ErrorIs(t, res.Err, ErrInteractionTimeout)
	assert.True(t, p.disabled)
	assert.Equal(t, []domain.CardID{101}, p.shown("question"))
	assert.Equal(t, []domain.CardID{101}, p.shown("answer"))
	assert.Empty(t, client.answered)
	assert.Empty(t, obs.rated)

	// Nothing but the timeout notice follows the disable.
	events := p.snapshot()
	var after []viewEvent
	for i, e := range events {
		if e.kind == "disable" {
			after = events[i+1:]
		}
	}
	assert.Equal(t, []viewEvent{{kind: "notice", notice: NoticeTimeout}}, after)

	last := obs.transitions[len(obs.transitions)-1]
	assert.Equal(t, AwaitingRating, last.From)
	assert.Equal(t, Aborted, last.To)
}

func TestControllerTimeoutOnQuestion(t *testing.T) {
	client := newFakeClient(101, 102)
	p := &scriptedPresenter{}
	c, _ := newSession(t, client, p, 30*time.Millisecond)

	res := c.Run(context.Background())

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Empty(t, p.shown("answer"))
	assert.Equal(t, []domain.CardID{101}, p.shown("question"))
}

func TestControllerIgnoresOtherActors(t *testing.T) {
	client := newFakeClient(101)
	p := &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action {
			return []Action{flip("intruder"), flip(owner)}
		},
		onAnswer: func(v AnswerView) []Action {
			return []Action{rate("intruder", domain.Again), rate(owner, domain.Easy)}
		},
	}
	c, _ := newSession(t, client, p, time.Second)

	res := c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 2, p.rejections)
	assert.Equal(t, []domain.Rating{domain.Easy}, client.ratings)
}

func TestControllerIntruderCannotAdvance(t *testing.T) {
	client := newFakeClient(101)
	p := &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action { return []Action{flip("intruder")} },
	}
	c, _ := newSession(t, client, p, 50*time.Millisecond)

	res := c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Empty(t, p.shown("answer"))
	assert.Equal(t, 1, p.rejections)
}

func TestControllerServiceFailures(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(f *fakeClient)
		notice NoticeKind
	}{
		{
			name: "due fetch unreachable",
			setup: func(f *fakeClient) {
				f.dueErr = &ankiconnect.Error{Action: "findCards", Kind: ankiconnect.ErrServiceUnavailable}
			},
			notice: NoticeUnavailable,
		},
		{
			name: "fields fetch rejected",
			setup: func(f *fakeClient) {
				f.infoErr = &ankiconnect.Error{Action: "cardsInfo", Kind: ankiconnect.ErrRequestRejected}
			},
			notice: NoticeRejected,
		},
		{
			name: "card vanished",
			setup: func(f *fakeClient) {
				delete(f.fields, 101)
			},
			notice: NoticeFailure,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient(101, 102)
			tc.setup(client)
			p := cooperative(domain.Good)
			c, _ := newSession(t, client, p, time.Second)

			res := c.Run(context.Background())
			p.wg.Wait()

			assert.Equal(t, Aborted, res.State)
			assert.Equal(t, ReasonServiceFailure, res.Reason)
			assert.Error(t, res.Err)
			assert.Contains(t, p.notices(), tc.notice)
			assert.Empty(t, p.shown("question"))
		})
	}
}

func TestControllerCancelled(t *testing.T) {
	client := newFakeClient(101)
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action {
			cancel()
			return nil
		},
	}
	c, _ := newSession(t, client, p, time.Second)

	res := c.Run(ctx)

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.True(t, p.disabled)
	assert.Contains(t, p.notices(), NoticeCancelled)
}

func TestControllerCancelledDuringServiceCall(t *testing.T) {
	client := newFakeClient(101)
	client.dueErr = &ankiconnect.Error{Action: "findCards", Kind: ankiconnect.ErrServiceUnavailable, Err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := cooperative(domain.Good)
	c, _ := newSession(t, client, p, time.Second)

	res := c.Run(ctx)

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []NoticeKind{NoticeCancelled}, p.notices())
}

func TestControllerBuildsViewsFromFields(t *testing.T) {
	client := newFakeClient(101)
	var q QuestionView
	var a AnswerView
	p := &scriptedPresenter{
		onQuestion: func(v QuestionView) []Action { q = v; return []Action{flip(owner)} },
		onAnswer:   func(v AnswerView) []Action { a = v; return []Action{rate(owner, domain.Good)} },
	}
	c, _ := newSession(t, client, p, time.Second)

	c.Run(context.Background())
	p.wg.Wait()

	assert.Equal(t, c.ID(), q.SessionID)
	assert.Equal(t, "term-101", q.Term)
	assert.Equal(t, "example", q.Example)
	assert.Equal(t, []string{"101.jpg"}, q.Images)
	assert.Equal(t, 1, q.Position)
	assert.Equal(t, 1, q.Total)
	assert.Equal(t, "meaning-101", a.Meaning)
	assert.Equal(t, domain.Ratings, a.Ratings)
}
