package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
)

// fakeClient is an in-memory flashcard service.
type fakeClient struct {
	mu        sync.Mutex
	due       []domain.CardID
	dueErr    error
	fields    map[domain.CardID]domain.FieldSet
	infoErr   error
	infoCalls [][]domain.CardID
	answered  []domain.CardID
	ratings   []domain.Rating
	answerErr map[domain.CardID]error
}

func newFakeClient(due ...domain.CardID) *fakeClient {
	fields := make(map[domain.CardID]domain.FieldSet, len(due))
	for _, id := range due {
		fields[id] = domain.FieldSet{
			"Vocabulary-Kanji":   "term-" + id.String(),
			"Vocabulary-English": "meaning-" + id.String(),
			"Expression":         `<b>example</b> <img src="` + id.String() + `.jpg">`,
		}
	}
	return &fakeClient{due: due, fields: fields, answerErr: map[domain.CardID]error{}}
}

func (f *fakeClient) FindDueCards(ctx context.Context, deck string) ([]domain.CardID, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	return f.due, nil
}

func (f *fakeClient) CardsInfo(ctx context.Context, ids []domain.CardID) (map[domain.CardID]domain.FieldSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls = append(f.infoCalls, append([]domain.CardID(nil), ids...))
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	out := make(map[domain.CardID]domain.FieldSet)
	for _, id := range ids {
		if fs, ok := f.fields[id]; ok {
			out[id] = fs
		}
	}
	return out, nil
}

func (f *fakeClient) AnswerCard(ctx context.Context, id domain.CardID, rating domain.Rating) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	f.ratings = append(f.ratings, rating)
	if err := f.answerErr[id]; err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeClient) calls() [][]domain.CardID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.CardID(nil), f.infoCalls...)
}

type viewEvent struct {
	kind   string
	card   domain.CardID
	notice NoticeKind
}

// scriptedPresenter records everything shown and plays the user's part by
// offering actions to the gate.
type scriptedPresenter struct {
	mu         sync.Mutex
	events     []viewEvent
	gate       *Gate
	cache      *Cache
	uncached   int
	disabled   bool
	rejections int
	onQuestion func(v QuestionView) []Action
	onAnswer   func(v AnswerView) []Action
	// inline offers each action once from inside the Show call.
	inline    bool
	offerErrs []error
	wg        sync.WaitGroup
}

func (p *scriptedPresenter) attach(c *Controller) {
	p.gate = c.Gate()
	p.cache = c.Cache()
}

func (p *scriptedPresenter) record(e viewEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *scriptedPresenter) checkCached(id domain.CardID) {
	if _, ok := p.cache.Get(id); !ok {
		p.mu.Lock()
		p.uncached++
		p.mu.Unlock()
	}
}

func (p *scriptedPresenter) Notify(ctx context.Context, n Notice) error {
	p.record(viewEvent{kind: "notice", notice: n.Kind})
	return nil
}

func (p *scriptedPresenter) ShowQuestion(ctx context.Context, v QuestionView) error {
	p.checkCached(v.Card)
	p.record(viewEvent{kind: "question", card: v.Card})
	if p.onQuestion != nil {
		p.deliver(p.onQuestion(v))
	}
	return nil
}

func (p *scriptedPresenter) ShowAnswer(ctx context.Context, v AnswerView) error {
	p.checkCached(v.Card)
	p.record(viewEvent{kind: "answer", card: v.Card})
	if p.onAnswer != nil {
		p.deliver(p.onAnswer(v))
	}
	return nil
}

func (p *scriptedPresenter) DisableControls(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = true
	p.events = append(p.events, viewEvent{kind: "disable"})
	return nil
}

// deliver offers actions in order once the gate is open for each of them, or
// straight away when inline is set.
func (p *scriptedPresenter) deliver(actions []Action) {
	if len(actions) == 0 {
		return
	}
	if p.inline {
		for _, a := range actions {
			err := p.gate.Offer(a)
			p.mu.Lock()
			p.offerErrs = append(p.offerErrs, err)
			p.mu.Unlock()
		}
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for _, a := range actions {
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				err := p.gate.Offer(a)
				if errors.Is(err, ErrUnauthorizedActor) {
					p.mu.Lock()
					p.rejections++
					p.mu.Unlock()
					break
				}
				if err == nil {
					break
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func (p *scriptedPresenter) snapshot() []viewEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]viewEvent(nil), p.events...)
}

func (p *scriptedPresenter) shown(kind string) []domain.CardID {
	var ids []domain.CardID
	for _, e := range p.snapshot() {
		if e.kind == kind {
			ids = append(ids, e.card)
		}
	}
	return ids
}

func (p *scriptedPresenter) notices() []NoticeKind {
	var kinds []NoticeKind
	for _, e := range p.snapshot() {
		if e.kind == "notice" {
			kinds = append(kinds, e.notice)
		}
	}
	return kinds
}

// recordingObserver keeps every callback a Controller makes.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
	rated       []Rated
	finished    []Result
}

func (o *recordingObserver) OnTransition(t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) OnRated(r Rated) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rated = append(o.rated, r)
}

func (o *recordingObserver) OnFinished(res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
}

func flip(actor string) Action { return Action{Kind: ActionFlip, Actor: actor} }

func rate(actor string, r domain.Rating) Action {
	return Action{Kind: ActionRate, Rating: r, Actor: actor}
}
