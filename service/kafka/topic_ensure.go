package kafka

import (
	"errors"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopic creates topic when missing. Existing topics are left as is.
func EnsureTopic(admin sarama.ClusterAdmin, topic string, partitions int32, rf int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if rf <= 0 {
		rf = 1
	}
	descs, err := admin.DescribeTopics([]string{topic})
	if err == nil && len(descs) == 1 && descs[0].Err == sarama.ErrNoError {
		logger.Debug("kafka topic exists", zap.String("topic", topic), zap.Int("partitions", len(descs[0].Partitions)))
		return nil
	}

	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}
	td := &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: rf,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 strPtr("delete"),
			"min.insync.replicas":            strPtr(minISR),
			"unclean.leader.election.enable": strPtr("false"),
			"compression.type":               strPtr("producer"),
		},
	}
	if err := admin.CreateTopic(topic, td, false); err != nil {
		var te *sarama.TopicError
		if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return nil
		}
		return errs.WrapMsg(err, "create topic", "topic", topic)
	}
	logger.Info("kafka topic created", zap.String("topic", topic), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
	return nil
}

func strPtr(s string) *string { return &s }
