package pubsub

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub"
)

// Publishable is anything that knows the topic it belongs on.
type Publishable interface {
	GetEventTopicName() string
}

type SubscriptionHandler struct {
	SubscriptionId string
	TopicName      string
	Handler        func(ctx context.Context, message *gcppubsub.Message)
}
