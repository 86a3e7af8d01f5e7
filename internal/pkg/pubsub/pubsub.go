package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const defaultAttempts = 5

type Client struct {
	client   *gcppubsub.Client
	attempts int
	backoff  backoff.Backoff

	mu     sync.Mutex
	topics map[string]*gcppubsub.Topic
}

func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("pub sub missing projectID to initialize")
	}
	client, err := gcppubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initialize pub sub connection")
	}
	log.Info().Str("projectId", projectID).Msg("Successful pubsub init")
	return &Client{
		client:   client,
		attempts: defaultAttempts,
		backoff: backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		topics: make(map[string]*gcppubsub.Topic),
	}, nil
}

// Publish sends message to its topic and waits for the server to accept it,
// retrying with exponential backoff.
func (c *Client) Publish(ctx context.Context, message Publishable) error {
	topicName := message.GetEventTopicName()
	t, err := c.getTopic(ctx, topicName)
	if err != nil {
		return err
	}
	data, err := encodeMessage(message)
	if err != nil {
		return errors.Wrapf(err, "encode message for %s", topicName)
	}

	b := c.backoff
	for attempt := 1; ; attempt++ {
		_, err = t.Publish(ctx, &gcppubsub.Message{Data: data}).Get(ctx)
		if err == nil {
			return nil
		}
		if attempt >= c.attempts || ctx.Err() != nil {
			return errors.Wrapf(err, "publish to %s after %d attempts", topicName, attempt)
		}
		wait := b.Duration()
		log.Warn().Err(err).Str("topic", topicName).Dur("retryIn", wait).Msg("Failed to publish message")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "publish to %s", topicName)
		}
	}
}

// Subscribe blocks receiving messages until ctx is done. The subscription is
// created on first use.
func (c *Client) Subscribe(ctx context.Context, handler SubscriptionHandler) error {
	sub := c.client.Subscription(handler.SubscriptionId)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return errors.Wrapf(err, "check subscription %s", handler.SubscriptionId)
	}
	if !exists {
		t, err := c.getTopic(ctx, handler.TopicName)
		if err != nil {
			return err
		}
		log.Info().Str("subscription", handler.SubscriptionId).Msg("Subscription does not exist. Creating new")
		sub, err = c.client.CreateSubscription(ctx, handler.SubscriptionId, gcppubsub.SubscriptionConfig{Topic: t})
		if err != nil {
			return errors.Wrapf(err, "create subscription %s", handler.SubscriptionId)
		}
	}
	if err := sub.Receive(ctx, handler.Handler); err != nil {
		return errors.Wrapf(err, "receive on %s", handler.SubscriptionId)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.topics = make(map[string]*gcppubsub.Topic)
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) getTopic(ctx context.Context, topicName string) (*gcppubsub.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.topics[topicName]; ok {
		return t, nil
	}
	t := c.client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "check topic %s", topicName)
	}
	if !exists {
		log.Info().Str("topic", topicName).Msg("Topic does not exist. Creating new")
		if t, err = c.client.CreateTopic(ctx, topicName); err != nil {
			return nil, errors.Wrapf(err, "create topic %s", topicName)
		}
	}
	c.topics[topicName] = t
	return t, nil
}

func encodeMessage(message any) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	default:
		return json.Marshal(message)
	}
}
