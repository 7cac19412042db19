package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
)

// taskTypePrefix はasynqのタスク種別の接頭辞。
const taskTypePrefix = "event:"

// TaskType はイベント種別に対応するasynqのタスク種別を返す。
func TaskType(t event.Type) string {
	return taskTypePrefix + string(t)
}

// AsynqPublisher はイベントをasynqのタスクとしてRedisに投入する。
type AsynqPublisher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

var _ Publisher = (*AsynqPublisher)(nil)

// NewAsynqPublisher はREDIS_URL形式のURLからAsynqPublisherを生成する。
func NewAsynqPublisher(redisURL, queue string, maxRetry int) (*AsynqPublisher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: REDIS_URLの解析に失敗: %w", err)
	}
	return &AsynqPublisher{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: maxRetry,
	}, nil
}

// Publish はイベントをキューに投入する。
// タスクIDにイベントIDを使うため、保持期間中の同一イベントの再投入は成功扱いで無視される。
func (p *AsynqPublisher) Publish(ctx context.Context, ev *event.Event) error {
	task, err := newTask(ev)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.TaskID(ev.ID)}
	if p.queue != "" {
		opts = append(opts, asynq.Queue(p.queue))
	}
	if p.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.maxRetry))
	}

	if _, err := p.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("asynq: イベント %s の投入に失敗: %w", ev.ID, err)
	}
	return nil
}

// Close はRedisとの接続を閉じる。
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}

// newTask はイベントからasynqのタスクを生成する。
func newTask(ev *event.Event) (*asynq.Task, error) {
	if ev == nil || ev.EventType == "" {
		return nil, errors.New("イベントタイプが空です")
	}
	payload, err := event.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskType(ev.EventType), payload), nil
}

// AsynqConsumer はasynqのキューからイベントを取り出してハンドラーに渡す。
type AsynqConsumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

var _ Subscriber = (*AsynqConsumer)(nil)

// ConsumerConfig はAsynqConsumerの設定。
type ConsumerConfig struct {
	// RedisURL はREDIS_URL形式の接続先。
	RedisURL string
	// Queue は購読するキュー名。
	Queue string
	// Concurrency は同時に処理するタスク数。
	Concurrency int
}

// NewAsynqConsumer はAsynqConsumerを生成する。
func NewAsynqConsumer(cfg ConsumerConfig, logger zerolog.Logger) (*AsynqConsumer, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: REDIS_URLの解析に失敗: %w", err)
	}

	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("イベントの処理に失敗しました")
		}),
	})
	return &AsynqConsumer{server: srv, mux: asynq.NewServeMux(), logger: logger}, nil
}

// Subscribe はイベント種別にハンドラーを登録する。Runの前に呼び出す。
func (c *AsynqConsumer) Subscribe(eventType event.Type, h Handler) {
	c.mux.HandleFunc(TaskType(eventType), taskHandler(h, c.logger))
}

// Run はキューの購読を開始し、ctxがキャンセルされるまでブロックする。
func (c *AsynqConsumer) Run(ctx context.Context) error {
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("asynq: サーバーの起動に失敗: %w", err)
	}
	c.logger.Info().Msg("イベントの購読を開始しました")
	<-ctx.Done()
	c.server.Shutdown()
	c.logger.Info().Msg("イベントの購読を停止しました")
	return nil
}

// taskHandler はHandlerをasynqのハンドラーに変換する。
// 復元できないペイロードは再試行しても回復しないため、再試行せずに破棄する。
func taskHandler(h Handler, logger zerolog.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		ev, err := event.Unmarshal(task.Payload())
		if err != nil {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("イベントを復元できないため破棄します")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return h(ctx, ev)
	}
}
