package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "event:LikeAdded", TaskType(event.TypeLikeAdded))
	assert.Equal(t, "event:CommentCreated", TaskType(event.TypeCommentCreated))
}

func TestTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("ペイロードを復元してハンドラーに渡す", func(t *testing.T) {
		t.Parallel()

		ev := newLikeEvent(t)
		task, err := newTask(ev)
		require.NoError(t, err)
		assert.Equal(t, "event:LikeAdded", task.Type())

		var got *event.Event
		h := taskHandler(func(_ context.Context, e *event.Event) error {
			got = e
			return nil
		}, zerolog.Nop())

		require.NoError(t, h(context.Background(), task))
		require.NotNil(t, got)
		assert.Equal(t, ev.ID, got.ID)

		data, err := event.DecodeData[event.LikeAddedData](got)
		require.NoError(t, err)
		assert.Equal(t, "bob", data.ActorUserID)
	})

	t.Run("ハンドラーのエラーはそのまま返し再試行させる", func(t *testing.T) {
		t.Parallel()

		task, err := newTask(newLikeEvent(t))
		require.NoError(t, err)

		boom := errors.New("db down")
		h := taskHandler(func(context.Context, *event.Event) error { return boom }, zerolog.Nop())

		err = h(context.Background(), task)
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("復元できないペイロードは再試行しない", func(t *testing.T) {
		t.Parallel()

		h := taskHandler(func(context.Context, *event.Event) error {
			t.Error("ハンドラーが呼ばれた")
			return nil
		}, zerolog.Nop())

		err := h(context.Background(), asynq.NewTask("event:LikeAdded", []byte("{broken")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNewTask_EmptyType(t *testing.T) {
	t.Parallel()

	_, err := newTask(&event.Event{ID: "x"})
	assert.Error(t, err)
}
