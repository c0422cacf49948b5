package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/conorfennell/ankibot/internal/knol"
	"github.com/conorfennell/ankibot/internal/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessions(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertSession(Session{ID: "a", Owner: "u1", State: "awaiting_question_ack", StartedAt: start}))
	require.NoError(t, db.UpsertSession(Session{ID: "b", Owner: "u2", State: "complete", StartedAt: start.Add(time.Hour)}))
	require.NoError(t, db.UpdateSessionState("a", "awaiting_rating"))

	s, err := db.FindSession("a")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_rating", s.State)
	assert.False(t, s.EndedAt.Valid)

	require.NoError(t, db.UpsertSession(Session{
		ID: "a", Owner: "u1", Deck: "Core 2000", State: "complete", Reviewed: 3,
		StartedAt: start, EndedAt: sql.NullTime{Time: start.Add(time.Minute), Valid: true},
	}))
	s, err = db.FindSession("a")
	require.NoError(t, err)
	assert.Equal(t, "Core 2000", s.Deck)
	assert.Equal(t, 3, s.Reviewed)
	assert.True(t, s.EndedAt.Valid)

	all, err := db.RecentSessions("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	mine, err := db.RecentSessions("u1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].ID)

	_, err = db.FindSession("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReviews(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	for i, rating := range []domain.Rating{domain.Good, domain.Again} {
		_, err := db.InsertReview(Review{
			SessionID:   "s1",
			CardID:      domain.CardID(100 + i),
			Position:    i + 1,
			Rating:      rating,
			Submitted:   i == 0,
			Fingerprint: "fp",
			ReviewedAt:  now,
		})
		require.NoError(t, err)
	}

	reviews, err := db.ReviewsBySession("s1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, domain.CardID(100), reviews[0].CardID)
	assert.Equal(t, domain.Good, reviews[0].Rating)
	assert.True(t, reviews[0].Submitted)
	assert.False(t, reviews[1].Submitted)

	n, err := db.CountReviewsByFingerprint("fp")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	none, err := db.ReviewsBySession("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorder(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, "Vocabulary-Kanji", nil)
	start := time.Now().UTC()
	fields := domain.FieldSet{"Vocabulary-Kanji": "<b>水</b>", "Vocabulary-English": "water"}

	rec.OnTransition(review.Transition{SessionID: "s1", From: review.Idle, To: review.AwaitingQuestionAck, At: start})
	rec.OnTransition(review.Transition{SessionID: "s1", From: review.AwaitingQuestionAck, To: review.AwaitingAnswerAck, At: start})

	s, err := db.FindSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_answer_ack", s.State)

	rec.OnRated(review.Rated{SessionID: "s1", Card: 7, Position: 1, Rating: domain.Easy, Submitted: true, Fields: fields, At: start})
	rec.OnFinished(review.Result{
		SessionID: "s1", Owner: "u1", Deck: "Core 2000", Source: "direct",
		State: review.Aborted, Reason: review.ReasonTimeout, Err: review.ErrInteractionTimeout,
		Total: 2, Reviewed: 1, StartedAt: start, EndedAt: start.Add(time.Minute),
	})

	s, err = db.FindSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "aborted", s.State)
	assert.Equal(t, review.ReasonTimeout, s.Reason)
	assert.Equal(t, "interaction timed out", s.Error)
	assert.Equal(t, "u1", s.Owner)

	reviews, err := db.ReviewsBySession("s1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "水", reviews[0].Term)
	assert.Equal(t, knol.Hash(fields), reviews[0].Fingerprint)
}
