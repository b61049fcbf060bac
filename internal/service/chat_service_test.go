package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/entity"
	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/internal/repository/memory"
	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/prompt"
	"ad-chat-be/pkg/ads/schedule"
	"ad-chat-be/pkg/llm"
	"ad-chat-be/pkg/stream"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var answer = []string{"Sure, ", "here is ", "a plan."}

type chatFixture struct {
	store      *fakeStore
	provider   *fakeProvider
	bus        *gochannel.GoChannel
	classified []string
	svc        IChatService
	userId     uuid.UUID
	convId     uuid.UUID
}

func newChatFixture(t *testing.T, label string) *chatFixture {
	t.Helper()

	sched, err := schedule.NewScheduler(schedule.Config{
		Schedule: []schedule.Mode{schedule.ModeNoAd, schedule.ModeOutResp, schedule.ModeInResp},
	})
	require.NoError(t, err)

	cat := catalog.New(map[string][]catalog.Product{
		"Fitness": {{Name: "Trail Runner 2", URL: "https://shop.example/trail", Desc: "Lightweight running shoes"}},
		"Travel":  {{Name: "Nomad Pack", URL: "https://shop.example/pack", Desc: "Carry-on backpack"}},
	})

	f := &chatFixture{
		provider: &fakeProvider{deltas: answer},
		bus:      gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
		userId:   uuid.New(),
		convId:   uuid.New(),
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	f.store = &fakeStore{
		owned: &entity.Conversation{
			Id:     f.convId,
			UserId: f.userId,
			Title:  entity.DefaultConversationTitle,
		},
	}

	f.svc = NewChatService(ChatServiceDeps{
		UowFactory: f.store,
		Guard:      memory.NewTurnGuard(time.Minute),
		Scheduler:  sched,
		Catalog:    cat,
		Matcher:    catalog.NewMatcher(cat, catalog.FallbackRandom, catalog.WithIntN(func(int) int { return 0 })),
		Classifier: classifierFunc(func(ctx context.Context, text string, categories []string) string {
			f.classified = append(f.classified, text)
			return label
		}),
		Provider:    f.provider,
		Multiplexer: stream.NewMultiplexer(logger.NewNop()),
		Bus:         f.bus,
		Logger:      logger.NewNop(),
	})
	return f
}

func (f *chatFixture) request(msg string) *dto.SendChatRequest {
	return &dto.SendChatRequest{Message: msg, ConversationId: f.convId.String()}
}

func demux(t *testing.T, raw []byte) (string, *stream.Payload) {
	t.Helper()
	d := stream.NewDemuxer(nil, logger.NewNop())
	_, err := d.Write(raw)
	require.NoError(t, err)
	d.Finish()
	return d.Text(), d.Selection()
}

func TestChatTurnScenarios(t *testing.T) {
	tests := []struct {
		name         string
		answered     int64
		label        string
		wantMode     schedule.Mode
		wantBlock    string
		wantKind     stream.Kind
		wantCategory string
		wantClassify bool
		wantInPrompt string
	}{
		{
			name:     "turn 0 is no-ad",
			answered: 0,
			label:    "Fitness",
			wantMode: schedule.ModeNoAd,
		},
		{
			name:         "turn 1 is out-resp even when classification is unknown",
			answered:     1,
			label:        prompt.UnknownTopic,
			wantMode:     schedule.ModeOutResp,
			wantBlock:    "[AD_DATA]",
			wantKind:     stream.KindAdData,
			wantCategory: "Fitness",
			wantClassify: true,
		},
		{
			name:         "turn 2 is in-resp with the product in the system prompt",
			answered:     2,
			label:        "travel",
			wantMode:     schedule.ModeInResp,
			wantBlock:    "[AD_META]",
			wantKind:     stream.KindAdMeta,
			wantCategory: "Travel",
			wantClassify: true,
			wantInPrompt: "Nomad Pack",
		},
		{
			name:     "schedule wraps around",
			answered: 3,
			label:    "Fitness",
			wantMode: schedule.ModeNoAd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, tt.label)
			f.store.assistantCount = tt.answered

			turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("I want to get fit for a trip"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, turn.AdMode)
			assert.Equal(t, int(tt.answered), turn.Index)

			var out bytes.Buffer
			result, err := turn.Run(&out)
			require.NoError(t, err)
			assert.Equal(t, stream.OutcomeCompleted, result.Outcome)
			assert.Equal(t, strings.Join(answer, ""), result.Text)

			raw := out.String()
			assert.True(t, strings.HasPrefix(raw, strings.Join(answer, "")), "text precedes any block")
			if tt.wantBlock == "" {
				assert.Equal(t, strings.Join(answer, ""), raw)
				assert.Nil(t, result.Frame)
			} else {
				assert.Equal(t, 1, strings.Count(raw, tt.wantBlock))
			}

			assistants := f.store.messages(entity.RoleAssistant)
			require.Len(t, assistants, 1, "exactly one persistence write")
			persisted := assistants[0]
			assert.Equal(t, tt.wantMode.String(), persisted.AdMode)
			assert.Equal(t, strings.Join(answer, ""), persisted.Content)

			text, sel := demux(t, out.Bytes())
			assert.Equal(t, strings.Join(answer, ""), text)

			if tt.wantKind == "" {
				assert.Nil(t, persisted.AdSelection)
				assert.Nil(t, sel)
			} else {
				require.NotNil(t, persisted.AdSelection)
				assert.Equal(t, tt.wantCategory, persisted.AdSelection.Category)
				assert.NotEmpty(t, persisted.AdSelection.ProductName)

				require.NotNil(t, sel)
				assert.Equal(t, tt.wantKind, sel.Type)
				assert.Equal(t, persisted.Id.String(), sel.MessageID, "block refers to the stored message")
				assert.Equal(t, persisted.AdSelection.ProductName, sel.Product.Name)
				assert.Equal(t, tt.wantCategory, sel.Product.Category)
			}

			assert.Equal(t, tt.wantClassify, len(f.classified) == 1)

			history := f.provider.lastHistory()
			require.NotEmpty(t, history)
			assert.Equal(t, llm.RoleSystem, history[0].Role)
			if tt.wantInPrompt != "" {
				assert.Contains(t, history[0].Content, tt.wantInPrompt)
			} else {
				assert.Equal(t, prompt.Default, history[0].Content)
			}
		})
	}
}

func TestBeginTurnStoresPlainUserMessageAndTitle(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.store.assistantCount = 1
	long := strings.Repeat("é", 100)

	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request(long))
	require.NoError(t, err)
	_, err = turn.Run(&bytes.Buffer{})
	require.NoError(t, err)

	users := f.store.messages(entity.RoleUser)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].AdMode, "user messages carry no ad mode")
	assert.Nil(t, users[0].AdSelection)

	require.Len(t, f.store.updatedConversations, 1)
	assert.Equal(t, strings.Repeat("é", 80), f.store.updatedConversations[0].Title)
	assert.Equal(t, 1, f.store.commits)
}

func TestBeginTurnKeepsTitleAfterFirstMessage(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.store.history = []*entity.ChatMessage{
		{Id: uuid.New(), ConversationId: f.convId, Role: entity.RoleUser, Content: "hello"},
		{Id: uuid.New(), ConversationId: f.convId, Role: entity.RoleAssistant, Content: "hi", AdMode: "no-ad"},
	}
	f.store.assistantCount = 1

	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("second question"))
	require.NoError(t, err)
	_, err = turn.Run(&bytes.Buffer{})
	require.NoError(t, err)

	assert.Empty(t, f.store.updatedConversations)

	history := f.provider.lastHistory()
	require.Len(t, history, 4, "system prompt, prior messages, new message")
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, llm.RoleAssistant, history[2].Role)
	assert.Equal(t, "second question", history[3].Content)
}

func TestBeginTurnRejectsForeignConversation(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.store.owned = nil

	_, err := f.svc.BeginTurn(context.Background(), uuid.New(), f.request("hi"))
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Empty(t, f.store.createdMessages)
}

func TestBeginTurnRejectsInvalidConversationId(t *testing.T) {
	f := newChatFixture(t, "Fitness")

	_, err := f.svc.BeginTurn(context.Background(), f.userId, &dto.SendChatRequest{Message: "hi", ConversationId: "nope"})
	require.Error(t, err)
	assert.Empty(t, f.store.createdMessages)
}

func TestSecondTurnInFlightConflicts(t *testing.T) {
	f := newChatFixture(t, "Fitness")

	first, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("one"))
	require.NoError(t, err)

	_, err = f.svc.BeginTurn(context.Background(), f.userId, f.request("two"))
	assert.ErrorIs(t, err, ErrTurnConflict)
	assert.Len(t, f.store.messages(entity.RoleUser), 1, "rejected turn stores nothing")

	_, err = first.Run(&bytes.Buffer{})
	require.NoError(t, err)

	next, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("three"))
	require.NoError(t, err, "guard is released after the turn")
	_, err = next.Run(&bytes.Buffer{})
	require.NoError(t, err)
}

func TestAbortedTurnPersistsNothing(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.store.assistantCount = 1

	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("hi"))
	require.NoError(t, err)

	result, err := turn.Run(failingWriter{})
	assert.ErrorIs(t, err, stream.ErrAborted)
	assert.Equal(t, stream.OutcomeAborted, result.Outcome)
	assert.Empty(t, f.store.messages(entity.RoleAssistant))

	again, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("retry"))
	require.NoError(t, err)
	again.Cancel()
	result, err = again.Run(&bytes.Buffer{})
	assert.ErrorIs(t, err, stream.ErrAborted)
	assert.Equal(t, stream.OutcomeAborted, result.Outcome)
	assert.Empty(t, f.store.messages(entity.RoleAssistant))
}

func TestUpstreamFailurePersistsPartialWithoutBlock(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.store.assistantCount = 1
	f.provider.failAt = 3

	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("hi"))
	require.NoError(t, err)

	var out bytes.Buffer
	result, err := turn.Run(&out)
	assert.ErrorIs(t, err, stream.ErrUpstream)
	assert.Equal(t, stream.OutcomeFailed, result.Outcome)
	assert.NotContains(t, out.String(), "[AD_DATA]")

	assistants := f.store.messages(entity.RoleAssistant)
	require.Len(t, assistants, 1)
	assert.Equal(t, "Sure, here is ", assistants[0].Content)
	assert.Equal(t, schedule.ModeOutResp.String(), assistants[0].AdMode)
	require.NotNil(t, assistants[0].AdSelection)
}

func TestStreamOpenFailureReleasesGuard(t *testing.T) {
	f := newChatFixture(t, "Fitness")
	f.provider.openErr = errors.New("connection refused")

	_, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("hi"))
	assert.ErrorIs(t, err, ErrGenerationStart)

	f.provider.openErr = nil
	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("hi again"))
	require.NoError(t, err)
	_, err = turn.Run(&bytes.Buffer{})
	require.NoError(t, err)
}

func TestTurnCompletionIsPublished(t *testing.T) {
	f := newChatFixture(t, "Travel")
	f.store.assistantCount = 1

	messages, err := f.bus.Subscribe(context.Background(), TopicTurnCompleted)
	require.NoError(t, err)

	turn, err := f.svc.BeginTurn(context.Background(), f.userId, f.request("where should I go"))
	require.NoError(t, err)
	_, err = turn.Run(&bytes.Buffer{})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		var got dto.TurnCompletedMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, f.convId.String(), got.ConversationId)
		assert.Equal(t, "out-resp", got.AdMode)
		assert.Equal(t, string(stream.OutcomeCompleted), got.Outcome)
		assert.Equal(t, "Travel", got.Category)
		assert.Equal(t, "Nomad Pack", got.ProductName)
		assert.Equal(t, string(stream.KindAdData), got.FrameKind)
		assert.Equal(t, f.store.messages(entity.RoleAssistant)[0].Id.String(), got.MessageId)
	case <-time.After(2 * time.Second):
		t.Fatal("no turn completion published")
	}
}
