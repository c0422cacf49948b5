package storage

import (
	"database/sql"

	"github.com/conorfennell/ankibot/internal/cardtext"
	"github.com/conorfennell/ankibot/internal/knol"
	"github.com/conorfennell/ankibot/internal/review"
	"go.uber.org/zap"
)

// Recorder writes review sessions to the database as they run. It is a
// review.Observer and may be shared by any number of sessions.
type Recorder struct {
	db        *DB
	termField string
	logger    *zap.Logger
}

// NewRecorder returns a Recorder. termField names the note field stored as
// the human readable label of each review.
func NewRecorder(db *DB, termField string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, termField: termField, logger: logger}
}

func (r *Recorder) OnTransition(t review.Transition) {
	var err error
	if t.From == review.Idle {
		err = r.db.UpsertSession(Session{ID: t.SessionID, State: t.To.String(), StartedAt: t.At})
	} else {
		err = r.db.UpdateSessionState(t.SessionID, t.To.String())
	}
	if err != nil {
		r.logger.Warn("failed to record transition", zap.String("session_id", t.SessionID), zap.Error(err))
	}
}

func (r *Recorder) OnRated(rated review.Rated) {
	_, err := r.db.InsertReview(Review{
		SessionID:   rated.SessionID,
		CardID:      rated.Card,
		Position:    rated.Position,
		Rating:      rated.Rating,
		Submitted:   rated.Submitted,
		Fingerprint: knol.Hash(rated.Fields),
		Term:        cardtext.Text(rated.Fields.Value(r.termField)),
		ReviewedAt:  rated.At,
	})
	if err != nil {
		r.logger.Warn("failed to record review", zap.String("session_id", rated.SessionID), zap.Error(err))
	}
}

func (r *Recorder) OnFinished(res review.Result) {
	s := Session{
		ID:        res.SessionID,
		Owner:     res.Owner,
		Deck:      res.Deck,
		Source:    res.Source,
		State:     res.State.String(),
		Reason:    res.Reason,
		Total:     res.Total,
		Reviewed:  res.Reviewed,
		Failed:    res.Failed,
		StartedAt: res.StartedAt,
		EndedAt:   sql.NullTime{Time: res.EndedAt, Valid: !res.EndedAt.IsZero()},
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	if err := r.db.UpsertSession(s); err != nil {
		r.logger.Warn("failed to record session", zap.String("session_id", res.SessionID), zap.Error(err))
	}
}
