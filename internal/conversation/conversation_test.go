package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/pagination"
	"github.com/nao1215/relay/internal/storage/sqlite"
	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock はテスト用の時計。呼び出しごとに1秒進む。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingPusher は配信されたイベントを記録する。
type recordingPusher struct {
	mu     sync.Mutex
	pushed map[string][]*event.Event
}

func (p *recordingPusher) Push(userID string, ev *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushed == nil {
		p.pushed = make(map[string][]*event.Event)
	}
	p.pushed[userID] = append(p.pushed[userID], ev)
}

type fixture struct {
	dir    *conversation.Directory
	thread *conversation.Thread
	clock  *fakeClock
	pusher *recordingPusher
}

func setup(t *testing.T) fixture {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := newFakeClock()
	var seq atomic.Int64
	newID := func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }
	pusher := &recordingPusher{}

	opts := []conversation.Option{
		conversation.WithClock(clock.Now),
		conversation.WithIDGenerator(newID),
		conversation.WithPusher(pusher),
	}
	return fixture{
		dir:    conversation.NewDirectory(store, opts...),
		thread: conversation.NewThread(store, opts...),
		clock:  clock,
		pusher: pusher,
	}
}

func TestDirectory_FindOrCreate(t *testing.T) {
	t.Parallel()

	t.Run("引数の順序によらず同じ会話を返す", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()

		c1, err := f.dir.FindOrCreate(ctx, "alice", "bob")
		require.NoError(t, err)
		c2, err := f.dir.FindOrCreate(ctx, "bob", "alice")
		require.NoError(t, err)

		assert.Equal(t, c1.ID, c2.ID)
		assert.Equal(t, [2]string{"alice", "bob"}, c1.Participants)
		assert.True(t, c1.UpdatedAt.Equal(c1.CreatedAt))
	})

	t.Run("並行に呼ばれても会話は1件", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()

		const n = 20
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, b := "alice", "bob"
				if i%2 == 0 {
					a, b = b, a
				}
				c, err := f.dir.FindOrCreate(ctx, a, b)
				assert.NoError(t, err)
				ids[i] = c.ID
			}()
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
		convs, err := f.dir.ListForUser(ctx, "alice", pagination.Page{})
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})

	t.Run("同一ユーザーや空のIDはErrInvalidParticipants", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()

		for _, pair := range [][2]string{{"alice", "alice"}, {"", "bob"}, {"alice", " "}, {" alice", "bob"}, {"alice", "bob\n"}} {
			_, err := f.dir.FindOrCreate(ctx, pair[0], pair[1])
			assert.ErrorIs(t, err, conversation.ErrInvalidParticipants, "pair=%v", pair)
		}

		convs, err := f.dir.ListForUser(ctx, "alice", pagination.Page{})
		require.NoError(t, err)
		assert.Empty(t, convs)
	})
}

func TestDirectory_ListForUser(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	ab, err := f.dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	ac, err := f.dir.FindOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = f.dir.FindOrCreate(ctx, "bob", "carol")
	require.NoError(t, err)

	convs, err := f.dir.ListForUser(ctx, "alice", pagination.Page{})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ac.ID, convs[0].ID, "新しい会話が先")

	_, err = f.thread.Append(ctx, ab.ID, "bob", "ping")
	require.NoError(t, err)

	convs, err = f.dir.ListForUser(ctx, "alice", pagination.Page{})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ab.ID, convs[0].ID, "メッセージが追加された会話が先頭に来る")
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "ping", convs[0].LastMessage.Text)

	var viaSeq []string
	for c, err := range f.dir.Conversations(ctx, "alice", 1) {
		require.NoError(t, err)
		viaSeq = append(viaSeq, c.ID)
	}
	assert.Equal(t, []string{ab.ID, ac.ID}, viaSeq)
}

func TestDirectory_Get(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()
	c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	got, err := f.dir.Get(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.dir.Get(ctx, c.ID, "mallory")
	assert.ErrorIs(t, err, conversation.ErrNotAParticipant)

	_, err = f.dir.Get(ctx, "missing", "alice")
	assert.ErrorIs(t, err, conversation.ErrConversationNotFound)
}

func TestOtherParticipant(t *testing.T) {
	t.Parallel()

	c := conversation.Conversation{Participants: [2]string{"alice", "bob"}}

	other, err := conversation.OtherParticipant(c, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", other)

	other, err = conversation.OtherParticipant(c, "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", other)

	_, err = conversation.OtherParticipant(c, "carol")
	assert.ErrorIs(t, err, conversation.ErrNotAParticipant)

	_, err = conversation.OtherParticipant(c, "")
	assert.ErrorIs(t, err, conversation.ErrNotAParticipant)
}

func TestThread_Append(t *testing.T) {
	t.Parallel()

	t.Run("追加順に並び末尾が最後に追加したメッセージ", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()
		c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
		require.NoError(t, err)

		texts := []string{"one", "two", "three", "four"}
		var last conversation.Message
		for i, text := range texts {
			sender := "alice"
			if i%2 == 1 {
				sender = "bob"
			}
			last, err = f.thread.Append(ctx, c.ID, sender, text)
			require.NoError(t, err)
		}

		msgs, err := f.thread.List(ctx, c.ID, pagination.Page{})
		require.NoError(t, err)
		require.Len(t, msgs, len(texts))
		for i, m := range msgs {
			assert.Equal(t, texts[i], m.Text)
			if i > 0 {
				assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
			}
		}
		assert.Equal(t, last.ID, msgs[len(msgs)-1].ID)

		got, err := f.dir.Get(ctx, c.ID, "alice")
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(last.CreatedAt))
	})

	t.Run("相手にMessageSentイベントを配信する", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()
		c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
		require.NoError(t, err)

		msg, err := f.thread.Append(ctx, c.ID, "alice", "hi")
		require.NoError(t, err)

		f.pusher.mu.Lock()
		defer f.pusher.mu.Unlock()
		require.Len(t, f.pusher.pushed["bob"], 1)
		assert.Empty(t, f.pusher.pushed["alice"])

		ev := f.pusher.pushed["bob"][0]
		assert.Equal(t, event.TypeMessageSent, ev.EventType)
		data, err := event.DecodeData[event.MessageSentData](ev)
		require.NoError(t, err)
		assert.Equal(t, event.MessageSentData{MessageID: msg.ID, SenderID: "alice", RecipientID: "bob"}, *data)
	})

	t.Run("失敗時はメッセージも更新日時も変化しない", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		ctx := context.Background()
		c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
		require.NoError(t, err)

		tests := []struct {
			name    string
			convID  string
			sender  string
			text    string
			wantErr error
		}{
			{name: "参加者以外", convID: c.ID, sender: "carol", text: "hi", wantErr: conversation.ErrNotAParticipant},
			{name: "空文字", convID: c.ID, sender: "alice", text: "", wantErr: conversation.ErrEmptyText},
			{name: "空白のみ", convID: c.ID, sender: "alice", text: " \n\t ", wantErr: conversation.ErrEmptyText},
			{name: "存在しない会話", convID: "missing", sender: "alice", text: "hi", wantErr: conversation.ErrConversationNotFound},
		}
		for _, tt := range tests {
			_, err := f.thread.Append(ctx, tt.convID, tt.sender, tt.text)
			assert.ErrorIs(t, err, tt.wantErr, tt.name)
		}

		msgs, err := f.thread.List(ctx, c.ID, pagination.Page{})
		require.NoError(t, err)
		assert.Empty(t, msgs)

		got, err := f.dir.Get(ctx, c.ID, "alice")
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(c.UpdatedAt))
	})
}

func TestThread_AppendOutOfOrderTimestamps(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// 後から保存されるメッセージほど古い時刻を受け取る
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Second)}
	var calls atomic.Int64
	clock := func() time.Time { return stamps[calls.Add(1)-1] }

	dir := conversation.NewDirectory(store, conversation.WithClock(clock))
	thread := conversation.NewThread(store, conversation.WithClock(clock))
	ctx := context.Background()

	c, err := dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	late, err := thread.Append(ctx, c.ID, "alice", "late-stamp")
	require.NoError(t, err)
	_, err = thread.Append(ctx, c.ID, "bob", "early-stamp")
	require.NoError(t, err)

	convs, err := dir.ListForUser(ctx, "alice", pagination.Page{})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	// 最終更新日時は最新のメッセージより前に戻らない
	assert.True(t, convs[0].UpdatedAt.Equal(late.CreatedAt), "updated_at=%s", convs[0].UpdatedAt)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "late-stamp", convs[0].LastMessage.Text)
}

func TestThread_ListAndMessages(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	_, err := f.thread.List(ctx, "missing", pagination.Page{})
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)

	c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := range 5 {
		_, err := f.thread.Append(ctx, c.ID, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	// イテレータは再開可能で、何度反復しても同じ結果になる
	seq := f.thread.Messages(ctx, c.ID, 2)
	for range 2 {
		var texts []string
		for m, err := range seq {
			require.NoError(t, err)
			texts = append(texts, m.Text)
		}
		assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, texts)
	}
}

func TestThread_MarkRead(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()
	c, err := f.dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.thread.Append(ctx, c.ID, "alice", "hi")
	require.NoError(t, err)
	_, err = f.thread.Append(ctx, c.ID, "bob", "hello")
	require.NoError(t, err)

	n, err := f.thread.MarkRead(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.thread.MarkRead(ctx, c.ID, "carol")
	assert.ErrorIs(t, err, conversation.ErrNotAParticipant)

	msgs, err := f.thread.List(ctx, c.ID, pagination.Page{})
	require.NoError(t, err)
	assert.True(t, msgs[0].Read, "aliceのメッセージはbobが既読にした")
	assert.False(t, msgs[1].Read)
}

// TestScenario_TwoUsers はAとBの会話の一連の流れを検証する。
func TestScenario_TwoUsers(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	c1, err := f.dir.FindOrCreate(ctx, "A", "B")
	require.NoError(t, err)
	_, err = f.thread.Append(ctx, c1.ID, "A", "hi")
	require.NoError(t, err)
	hello, err := f.thread.Append(ctx, c1.ID, "B", "hello")
	require.NoError(t, err)

	convs, err := f.dir.ListForUser(ctx, "A", pagination.Page{})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, c1.ID, convs[0].ID)
	assert.True(t, convs[0].UpdatedAt.Equal(hello.CreatedAt))

	msgs, err := f.thread.List(ctx, c1.ID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "A", msgs[0].SenderID)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, "B", msgs[1].SenderID)
}
