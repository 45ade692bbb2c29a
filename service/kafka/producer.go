package kafka

import (
	"encoding/json"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Report is a user complaint about one stored message.
type Report struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportProducer writes reports to the moderation topic, keyed by
// message id.
type ReportProducer struct {
	client sarama.Client
	prod   sarama.SyncProducer
	topic  string
}

// NewReportProducer connects, makes sure the topic exists and builds a
// sync producer on the shared client.
func NewReportProducer(c config.KafkaConfig) (*ReportProducer, error) {
	client, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	if admin, aerr := sarama.NewClusterAdminFromClient(client); aerr == nil {
		if err := EnsureTopic(admin, c.ReportTopic, c.Partitions, c.ReplicationFactor); err != nil {
			logger.Warn("ensure report topic failed", zap.String("topic", c.ReportTopic), zap.Error(err))
		}
		// admin 关闭会顺带关闭 client，这里只丢弃引用
	} else {
		logger.Warn("kafka admin unavailable", zap.Error(aerr))
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka sync producer")
	}
	return &ReportProducer{client: client, prod: p, topic: c.ReportTopic}, nil
}

// NewReportProducerWith wraps an existing producer.
func NewReportProducerWith(p sarama.SyncProducer, topic string) *ReportProducer {
	return &ReportProducer{prod: p, topic: topic}
}

func (p *ReportProducer) Topic() string { return p.topic }

// SendReport blocks until the broker acknowledged r.
func (p *ReportProducer) SendReport(r Report) (int32, int64, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return 0, 0, errs.Wrap(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(r.MessageID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("report_id"), Value: []byte(r.ID)},
		},
	}
	part, off, err := p.prod.SendMessage(msg)
	if err != nil {
		return 0, 0, errs.WrapMsg(err, "send report", "topic", p.topic, "message_id", r.MessageID)
	}
	return part, off, nil
}

func (p *ReportProducer) Close() error {
	err := p.prod.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
