package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/repository/contract"
	"ad-chat-be/internal/repository/specification"
	"ad-chat-be/internal/repository/unitofwork"
	"ad-chat-be/pkg/events"
	"ad-chat-be/pkg/llm"
)

// fakeStore backs every fake repository. Specifications are not evaluated;
// each test seeds what a query should return.
type fakeStore struct {
	mu sync.Mutex

	owned          *entity.Conversation
	conversations  []*entity.Conversation
	history        []*entity.ChatMessage
	assistantCount int64

	createdConversations []*entity.Conversation
	createdMessages      []*entity.ChatMessage
	updatedConversations []*entity.Conversation
	storedEvents         []*entity.AdEvent

	findAllSpecs [][]specification.Specification

	createMessageErr func(msg *entity.ChatMessage) error
	bulkErr          error

	commits   int
	rollbacks int
}

func (s *fakeStore) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUow{store: s}
}

func (s *fakeStore) messages(role string) []*entity.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ChatMessage
	for _, m := range s.createdMessages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fakeUow struct {
	store *fakeStore
	inTx  bool
}

func (u *fakeUow) Begin(ctx context.Context) error {
	if u.inTx {
		return errors.New("transaction already started")
	}
	u.inTx = true
	return nil
}

func (u *fakeUow) Commit() error {
	u.inTx = false
	u.store.mu.Lock()
	u.store.commits++
	u.store.mu.Unlock()
	return nil
}

func (u *fakeUow) Rollback() error {
	if !u.inTx {
		return nil
	}
	u.inTx = false
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	return nil
}

func (u *fakeUow) ConversationRepository() contract.ConversationRepository {
	return fakeConversationRepo{u.store}
}

func (u *fakeUow) ChatMessageRepository() contract.ChatMessageRepository {
	return fakeMessageRepo{u.store}
}

func (u *fakeUow) AdEventRepository() contract.AdEventRepository {
	return fakeAdEventRepo{u.store}
}

type fakeConversationRepo struct{ s *fakeStore }

func (r fakeConversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.createdConversations = append(r.s.createdConversations, c)
	return nil
}

func (r fakeConversationRepo) Update(ctx context.Context, c *entity.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	r.s.updatedConversations = append(r.s.updatedConversations, &cp)
	return nil
}

func (r fakeConversationRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.owned == nil {
		return nil, nil
	}
	cp := *r.s.owned
	return &cp, nil
}

func (r fakeConversationRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.findAllSpecs = append(r.s.findAllSpecs, specs)
	return r.s.conversations, nil
}

type fakeMessageRepo struct{ s *fakeStore }

func (r fakeMessageRepo) Create(ctx context.Context, msg *entity.ChatMessage) error {
	if r.s.createMessageErr != nil {
		if err := r.s.createMessageErr(msg); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.createdMessages = append(r.s.createdMessages, msg)
	return nil
}

func (r fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.history, nil
}

func (r fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.assistantCount, nil
}

type fakeAdEventRepo struct{ s *fakeStore }

func (r fakeAdEventRepo) CreateBulk(ctx context.Context, batch []*entity.AdEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.bulkErr != nil {
		return r.s.bulkErr
	}
	r.s.storedEvents = append(r.s.storedEvents, batch...)
	return nil
}

// fakeProvider records the history each stream was opened with.
type fakeProvider struct {
	mu        sync.Mutex
	deltas    []string
	failAt    int
	openErr   error
	histories [][]llm.Message
}

func (p *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *fakeProvider) Generate(ctx context.Context, systemPrompt, userText string, options ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *fakeProvider) Stream(ctx context.Context, history []llm.Message, options ...llm.Option) (llm.TokenStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.histories = append(p.histories, history)
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &tokenStream{ctx: ctx, deltas: p.deltas, failAt: p.failAt}, nil
}

func (p *fakeProvider) lastHistory() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.histories) == 0 {
		return nil
	}
	return p.histories[len(p.histories)-1]
}

type tokenStream struct {
	ctx    context.Context
	deltas []string
	pos    int
	failAt int // 1-based index of the Recv that fails; 0 never fails
}

func (s *tokenStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.failAt > 0 && s.pos+1 == s.failAt {
		return "", errors.New("upstream reset")
	}
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *tokenStream) Close() error { return nil }

type classifierFunc func(ctx context.Context, text string, categories []string) string

func (f classifierFunc) Classify(ctx context.Context, text string, categories []string) string {
	return f(ctx, text, categories)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("client went away")
}
