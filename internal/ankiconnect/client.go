// Package ankiconnect is a client for the AnkiConnect add-on's JSON API.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
	"go.uber.org/zap"
)

// DefaultVersion is the AnkiConnect API version this client speaks.
const DefaultVersion = 6

// Client issues AnkiConnect actions. It holds no session state and may be
// shared by any number of concurrent review sessions.
type Client struct {
	baseURL string
	version int
	client  *http.Client
	logger  *zap.Logger
}

// New creates a client for the AnkiConnect endpoint at baseURL.
func New(baseURL string, version int, timeout time.Duration, logger *zap.Logger) *Client {
	if version == 0 {
		version = DefaultVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		version: version,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "ankiconnect")),
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke performs one action and decodes its result into out (which may be nil).
func (c *Client) invoke(ctx context.Context, action string, params any, out any) error {
	start := time.Now()
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(request{Action: action, Version: c.version, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return unavailable(action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return unavailable(action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return unavailable(action, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
	}

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return unavailable(action, fmt.Errorf("decode response: %w", err))
	}

	c.logger.Debug("anki action",
		zap.String("action", action),
		zap.Duration("duration", time.Since(start)),
	)

	if env.Error != nil {
		return rejected(action, *env.Error)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return unavailable(action, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

var searchEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `*`, `\*`)

// DueQuery builds the search used to find due cards in deck and its subdecks.
// Characters with a meaning in Anki's search syntax are escaped.
func DueQuery(deck string) string {
	return fmt.Sprintf("deck:\"%s*\" is:due", searchEscaper.Replace(deck))
}

// FindDueCards returns the due cards of deck in the order AnkiConnect lists them.
func (c *Client) FindDueCards(ctx context.Context, deck string) ([]domain.CardID, error) {
	var ids []domain.CardID
	if err := c.invoke(ctx, "findCards", map[string]string{"query": DueQuery(deck)}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

type cardInfo struct {
	CardID domain.CardID `json:"cardId"`
	Fields map[string]struct {
		Value string `json:"value"`
		Order int    `json:"order"`
	} `json:"fields"`
}

// CardsInfo fetches the note fields of every card in ids with one request.
// Cards AnkiConnect does not know are left out of the result.
func (c *Client) CardsInfo(ctx context.Context, ids []domain.CardID) (map[domain.CardID]domain.FieldSet, error) {
	out := make(map[domain.CardID]domain.FieldSet, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var infos []cardInfo
	if err := c.invoke(ctx, "cardsInfo", map[string]any{"cards": ids}, &infos); err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.CardID == 0 {
			continue
		}
		fields := make(domain.FieldSet, len(info.Fields))
		for name, f := range info.Fields {
			fields[name] = f.Value
		}
		out[info.CardID] = fields
	}
	return out, nil
}

type answer struct {
	CardID domain.CardID `json:"cardId"`
	Ease   int           `json:"ease"`
}

// AnswerCard submits rating for the card id without involving the Anki GUI.
// A false result from AnkiConnect is reported as ErrRequestRejected.
func (c *Client) AnswerCard(ctx context.Context, id domain.CardID, rating domain.Rating) (bool, error) {
	var results []bool
	params := map[string]any{"answers": []answer{{CardID: id, Ease: int(rating)}}}
	if err := c.invoke(ctx, "answerCards", params, &results); err != nil {
		return false, err
	}
	if len(results) == 0 || !results[0] {
		return false, rejected("answerCards", fmt.Sprintf("card %d was not answered", id))
	}
	return true, nil
}

// GUIDeckReview opens the review screen for deck in the Anki window.
func (c *Client) GUIDeckReview(ctx context.Context, deck string) error {
	var ok bool
	if err := c.invoke(ctx, "guiDeckReview", map[string]string{"name": deck}, &ok); err != nil {
		return err
	}
	if !ok {
		return rejected("guiDeckReview", fmt.Sprintf("could not open deck %q", deck))
	}
	return nil
}

// GUIReviewActive reports whether the Anki window is currently reviewing.
func (c *Client) GUIReviewActive(ctx context.Context) (bool, error) {
	var active bool
	if err := c.invoke(ctx, "guiReviewActive", nil, &active); err != nil {
		return false, err
	}
	return active, nil
}

// GUIShowQuestion moves the Anki window to the question side.
func (c *Client) GUIShowQuestion(ctx context.Context) error {
	return c.invoke(ctx, "guiShowQuestion", nil, nil)
}

// GUIShowAnswer moves the Anki window to the answer side.
func (c *Client) GUIShowAnswer(ctx context.Context) error {
	return c.invoke(ctx, "guiShowAnswer", nil, nil)
}

// GUICurrentCard returns the card the Anki window is showing.
func (c *Client) GUICurrentCard(ctx context.Context) (domain.CardID, error) {
	var card *struct {
		CardID domain.CardID `json:"cardId"`
	}
	if err := c.invoke(ctx, "guiCurrentCard", nil, &card); err != nil {
		return 0, err
	}
	if card == nil || card.CardID == 0 {
		return 0, rejected("guiCurrentCard", "no card is being reviewed")
	}
	return card.CardID, nil
}

// GUIAnswerCard answers the card the Anki window is showing.
func (c *Client) GUIAnswerCard(ctx context.Context, rating domain.Rating) (bool, error) {
	var ok bool
	if err := c.invoke(ctx, "guiAnswerCard", map[string]int{"ease": int(rating)}, &ok); err != nil {
		return false, err
	}
	if !ok {
		return false, rejected("guiAnswerCard", "no card active or answer not shown")
	}
	return true, nil
}

// DeckNames lists every deck in the collection.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Version returns the API version reported by AnkiConnect.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}
