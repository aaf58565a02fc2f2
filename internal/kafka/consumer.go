package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/types"
)

// OutcomeHandler is called for each order outcome consumed from Kafka.
type OutcomeHandler func(ctx context.Context, outcome types.OrderOutcome) error

// Consumer ingests order outcomes from a Kafka topic and feeds them to
// the routing engine asynchronously. Duplicate deliveries are harmless:
// outcome recording is idempotent downstream.
type Consumer struct {
	client  sarama.ConsumerGroup
	topic   string
	handler OutcomeHandler
	logger  *logrus.Logger
	ready   chan bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer creates a Kafka outcome consumer
func NewConsumer(brokers []string, groupID, topic string, handler OutcomeHandler, logger *logrus.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Version = sarama.V2_8_0_0

	client, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
		logger:  logger,
		ready:   make(chan bool),
	}, nil
}

// Start begins consuming outcome messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{consumer: c, ready: c.ready}

			if err := c.client.Consume(ctx, []string{c.topic}, handler); err != nil {
				c.logger.WithError(err).Error("Kafka consume error")
			}

			if ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.WithField("topic", c.topic).Info("Outcome consumer started")
	return nil
}

// Close stops the consumer gracefully
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.client.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var outcome types.OrderOutcome
			if err := json.Unmarshal(message.Value, &outcome); err != nil {
				h.consumer.logger.WithError(err).WithFields(logrus.Fields{
					"topic":  message.Topic,
					"offset": message.Offset,
				}).Warn("Failed to unmarshal outcome message")
				session.MarkMessage(message, "")
				continue
			}

			if err := h.consumer.handler(session.Context(), outcome); err != nil {
				h.consumer.logger.WithError(err).WithFields(logrus.Fields{
					"order_id": outcome.OrderID,
					"provider": outcome.ProviderID,
				}).Warn("Failed to handle outcome message")
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
