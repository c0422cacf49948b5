// Package terminal runs a review session on a plain text terminal.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/conorfennell/ankibot/internal/review"
)

// Owner is the actor id of the person at the terminal.
const Owner = "terminal"

// ErrQuit is returned by Feed when the user typed q.
var ErrQuit = errors.New("quit")

// Presenter prints session output as text.
type Presenter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

func (p *Presenter) printf(format string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, format, args...)
	return err
}

func (p *Presenter) Notify(ctx context.Context, n review.Notice) error {
	return p.printf("%s\n", n.Text)
}

func (p *Presenter) ShowQuestion(ctx context.Context, v review.QuestionView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n── Card %d/%d ──\n", v.Position, v.Total)
	fmt.Fprintf(&b, "  %s\n", v.Term)
	line(&b, "Reading", v.Reading)
	line(&b, "Kana", v.Kana)
	line(&b, "Part of speech", v.PartOfSpeech)
	line(&b, "Example", v.Example)
	if len(v.Images) > 0 {
		line(&b, "Media", strings.Join(v.Images, ", "))
	}
	b.WriteString("[enter] show answer, [q] quit\n")
	return p.printf("%s", b.String())
}

func (p *Presenter) ShowAnswer(ctx context.Context, v review.AnswerView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "  → %s\n", v.Meaning)
	line(&b, "Translation", v.Translation)
	choices := make([]string, 0, len(v.Ratings))
	for _, r := range v.Ratings {
		choices = append(choices, fmt.Sprintf("[%d] %s", int(r), r))
	}
	fmt.Fprintf(&b, "%s\n", strings.Join(choices, "  "))
	return p.printf("%s", b.String())
}

// DisableControls has nothing to disable on a terminal.
func (p *Presenter) DisableControls(ctx context.Context) error {
	return nil
}

func line(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "  %s: %s\n", label, value)
	}
}

// Feed reads the user's input line by line and offers it to gate as Owner.
// Any line flips a card; a rating is "1".."4" or a rating name. It returns
// ErrQuit on "q", io.EOF once the input ends and ctx.Err() once ctx is done. Input that
// does not fit the current phase is reported on hints and skipped.
func Feed(ctx context.Context, in io.Reader, hints io.Writer, gate *review.Gate) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if strings.EqualFold(text, "q") {
				return ErrQuit
			}
			if err := offer(gate, text); err != nil {
				fmt.Fprintf(hints, "%v\n", err)
			}
		}
	}
}

func offer(gate *review.Gate, text string) error {
	switch gate.Waiting() {
	case review.ActionFlip:
		return gate.Offer(review.Action{Kind: review.ActionFlip, Actor: Owner})
	case review.ActionRate:
		r, err := domain.ParseRating(capitalize(text))
		if err != nil {
			return fmt.Errorf("enter 1-4 to rate: %w", err)
		}
		return gate.Offer(review.Action{Kind: review.ActionRate, Rating: r, Actor: Owner})
	default:
		return review.ErrNotAwaiting
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
