package crawler

import (
	"context"
	"fmt"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	kafkapkg "github.com/thep200/gitee-crawler/pkg/kafka"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Sink nhận các item của một batch. Write chỉ trả về khi item đã được lưu bền vững,
// sau đó runner mới lưu checkpoint.
type Sink interface {
	Write(ctx context.Context, category paginator.Kind, msgs []model.ItemMessage) error
	Close() error
}

// batchWriter được implement bởi gorm model của từng bảng item
type batchWriter interface {
	CreateBatch(ctx context.Context, msgs []model.ItemMessage) error
}

// MysqlSink upsert item thẳng vào các bảng
type MysqlSink struct {
	Logger log.Logger
	tables map[paginator.Kind]batchWriter
}

func NewMysqlSink(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*MysqlSink, error) {
	issueMd, _ := model.NewIssue(config, logger, mysql)
	pullMd, _ := model.NewPullRequest(config, logger, mysql)
	repoMd, _ := model.NewRepository(config, logger, mysql)
	return &MysqlSink{
		Logger: logger,
		tables: map[paginator.Kind]batchWriter{
			paginator.KindIssue:       issueMd,
			paginator.KindPullRequest: pullMd,
			paginator.KindRepository:  repoMd,
		},
	}, nil
}

func (s *MysqlSink) Write(ctx context.Context, category paginator.Kind, msgs []model.ItemMessage) error {
	table, ok := s.tables[category]
	if !ok {
		return fmt.Errorf("no table for category %q", category)
	}
	if err := table.CreateBatch(ctx, msgs); err != nil {
		return err
	}
	s.Logger.Debug(ctx, "Saved %d %s items", len(msgs), category)
	return nil
}

func (s *MysqlSink) Close() error { return nil }

type publisher interface {
	PublishBatch(ctx context.Context, messages []kafkapkg.Message) error
	Close() error
}

// KafkaSink gửi mỗi category tới topic riêng, key là category
type KafkaSink struct {
	Logger     log.Logger
	publishers map[paginator.Kind]publisher
}

func NewKafkaSink(config *cfg.Config, logger log.Logger, categories []paginator.Kind) (*KafkaSink, error) {
	sink := &KafkaSink{Logger: logger, publishers: make(map[paginator.Kind]publisher)}
	for _, category := range categories {
		producer, err := kafkapkg.NewProducer(config, logger, config.Kafka.Topic(string(category)))
		if err != nil {
			sink.Close()
			return nil, fmt.Errorf("kafka producer for %s: %w", category, err)
		}
		sink.publishers[category] = producer
	}
	return sink, nil
}

func (s *KafkaSink) Write(ctx context.Context, category paginator.Kind, msgs []model.ItemMessage) error {
	pub, ok := s.publishers[category]
	if !ok {
		return fmt.Errorf("no kafka topic for category %q", category)
	}
	batch := make([]kafkapkg.Message, 0, len(msgs))
	for _, msg := range msgs {
		batch = append(batch, kafkapkg.Message{Key: string(category), Value: msg})
	}
	return pub.PublishBatch(ctx, batch)
}

func (s *KafkaSink) Close() error {
	var firstErr error
	for category, pub := range s.publishers {
		if err := pub.Close(); err != nil {
			s.Logger.Error(context.Background(), "Error closing %s producer: %v", category, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
