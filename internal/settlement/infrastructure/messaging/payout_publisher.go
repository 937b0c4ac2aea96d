package messaging

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/gdip/internal/settlement/domain"
	"github.com/wyfcoding/gdip/pkg/mq"
)

// KafkaPayoutPublisher 把派息事件投递到 Kafka
type KafkaPayoutPublisher struct {
	producer *mq.Producer
	topic    string
	logger   *slog.Logger
}

// NewKafkaPayoutPublisher 创建派息事件发布器
func NewKafkaPayoutPublisher(producer *mq.Producer, topic string, logger *slog.Logger) *KafkaPayoutPublisher {
	return &KafkaPayoutPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// PublishPayout 发布派息事件；按账户分区保证同账户事件有序
func (p *KafkaPayoutPublisher) PublishPayout(ctx context.Context, event domain.PayoutEvent) error {
	if err := p.producer.SendMessage(ctx, p.topic, event.AccountID, event); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "payout event published",
		"entry_id", event.EntryID, "account_id", event.AccountID, "amount", event.Amount)
	return nil
}
