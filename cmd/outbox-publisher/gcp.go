package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pinger interface {
	Ping(context.Context) error
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// topicPublishers caches one Pub/Sub publisher per topic.
func topicPublishers(src publisherSource) func(topic string) topicPublisher {
	cache := map[string]topicPublisher{}
	return func(topic string) topicPublisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := src.Publisher(topic)
		if raw == nil {
			return nil
		}
		pub := &gcpPublisher{raw: raw}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	raw *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{res: p.raw.Publish(ctx, msg)}
}

type gcpResult struct {
	res *gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	return r.res.Get(ctx)
}
