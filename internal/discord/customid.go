package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/conorfennell/ankibot/internal/review"
)

// Button custom ids carry the session id so a press can be routed to the
// right session: "flip:<session>" and "ease:<n>:<session>".
const (
	flipPrefix = "flip"
	easePrefix = "ease"
)

var errBadCustomID = errors.New("malformed button id")

func flipID(sessionID string) string {
	return flipPrefix + ":" + sessionID
}

func rateID(r domain.Rating, sessionID string) string {
	return fmt.Sprintf("%s:%d:%s", easePrefix, int(r), sessionID)
}

// parseCustomID turns a button id back into the session it belongs to and
// the action it stands for. The actor is left empty.
func parseCustomID(id string) (string, review.Action, error) {
	kind, rest, ok := strings.Cut(id, ":")
	if !ok {
		return "", review.Action{}, fmt.Errorf("%w: %q", errBadCustomID, id)
	}
	switch kind {
	case flipPrefix:
		if rest == "" {
			return "", review.Action{}, fmt.Errorf("%w: %q", errBadCustomID, id)
		}
		return rest, review.Action{Kind: review.ActionFlip}, nil
	case easePrefix:
		n, sid, ok := strings.Cut(rest, ":")
		if !ok || sid == "" {
			return "", review.Action{}, fmt.Errorf("%w: %q", errBadCustomID, id)
		}
		r, err := domain.ParseRating(n)
		if err != nil {
			return "", review.Action{}, fmt.Errorf("%w: %v", errBadCustomID, err)
		}
		return sid, review.Action{Kind: review.ActionRate, Rating: r}, nil
	default:
		return "", review.Action{}, fmt.Errorf("%w: %q", errBadCustomID, id)
	}
}
