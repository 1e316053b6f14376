package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/kafka"
	"github.com/thep200/gitee-crawler/pkg/log"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 5 * time.Second
)

// Batcher gom các message và ghi khi batch đầy hoặc hết timeout
type Batcher struct {
	Logger   log.Logger
	writer   batchWriter
	size     int
	timeout  time.Duration
	messages chan model.ItemMessage
	done     chan struct{}
}

func NewBatcher(logger log.Logger, writer batchWriter, size int, timeout time.Duration) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &Batcher{
		Logger:   logger,
		writer:   writer,
		size:     size,
		timeout:  timeout,
		messages: make(chan model.ItemMessage, size*2),
		done:     make(chan struct{}),
	}
}

func (b *Batcher) Add(ctx context.Context, msg model.ItemMessage) error {
	select {
	case b.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run xử lý batch tới khi ctx kết thúc, sau đó ghi nốt phần còn lại
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.done)

	var batch []model.ItemMessage
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// xử lý nốt các message đã nhận
			for {
				select {
				case msg := <-b.messages:
					batch = append(batch, msg)
				default:
					b.write(context.WithoutCancel(ctx), batch)
					return
				}
			}

		case msg := <-b.messages:
			batch = append(batch, msg)
			if len(batch) >= b.size {
				b.write(ctx, batch)
				batch = nil
				timer.Reset(b.timeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				b.write(ctx, batch)
				batch = nil
			}
			timer.Reset(b.timeout)
		}
	}
}

// Done được đóng khi Run đã kết thúc
func (b *Batcher) Done() <-chan struct{} {
	return b.done
}

func (b *Batcher) write(ctx context.Context, batch []model.ItemMessage) {
	if len(batch) == 0 {
		return
	}
	b.Logger.Info(ctx, "Processing batch of %d items", len(batch))
	if err := b.writer.CreateBatch(ctx, batch); err != nil {
		b.Logger.Error(ctx, "Failed to save batch of %d items: %v", len(batch), err)
		return
	}
	b.Logger.Info(ctx, "Successfully saved batch of %d items", len(batch))
}

// Consume đọc topic của category và lưu vào bảng tương ứng tới khi ctx kết thúc
func Consume(ctx context.Context, config *cfg.Config, logger log.Logger, mysql *db.Mysql, category paginator.Kind) error {
	sink, err := NewMysqlSink(config, logger, mysql)
	if err != nil {
		return err
	}
	if err := mysql.Migrate(model.All(config, logger, mysql)...); err != nil {
		return fmt.Errorf("migrate item tables: %w", err)
	}
	writer, ok := sink.tables[category]
	if !ok {
		return fmt.Errorf("no table for category %q", category)
	}

	consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Topic(string(category)))
	if err != nil {
		return err
	}
	defer consumer.Close()

	batcher := NewBatcher(logger, writer, DefaultBatchSize, DefaultBatchTimeout)
	consumer.RegisterHandler(string(category), func(ctx context.Context, data []byte) error {
		var msg model.ItemMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal %s message: %w", category, err)
		}
		return batcher.Add(ctx, msg)
	})

	go batcher.Run(ctx)
	logger.Info(ctx, "%s consumer started", category)

	err = consumer.Start(ctx)
	<-batcher.Done()
	return err
}
