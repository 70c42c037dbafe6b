package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

// Resource is a topic or subscription a process cannot run without.
type Resource struct {
	kind resourceKind
	name string
}

func Topic(name string) Resource {
	return Resource{kind: kindTopic, name: strings.TrimSpace(name)}
}

func Subscription(name string) Resource {
	return Resource{kind: kindSubscription, name: strings.TrimSpace(name)}
}

// Client wraps the v2 Pub/Sub client for one project.
type Client struct {
	client   *pubsub.Client
	project  string
	required []Resource
}

// NewClient connects and checks that every required resource exists. Blank
// names are skipped so optional topics can be passed straight from config.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger, required ...Resource) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}

	raw, err := pubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{client: raw, project: project}
	for _, res := range required {
		if res.name != "" {
			c.required = append(c.required, res)
		}
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"resources": len(c.required)}), "pubsub client initialized")
	}
	return c, nil
}

// Ping re-checks the required resources.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, res := range c.required {
		if err := c.check(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) check(ctx context.Context, res Resource) error {
	full := c.resourceName(res)
	var err error
	switch res.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s does not exist", full)
	default:
		return fmt.Errorf("check %s: %w", full, err)
	}
}

// Subscriber returns a handle for a subscription id or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName(Subscription(name)))
}

// Publisher returns a handle for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Publisher(c.resourceName(Topic(name)))
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a bare id to projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through.
func (c *Client) resourceName(res Resource) string {
	if strings.HasPrefix(res.name, "projects/") {
		return res.name
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.project, res.kind, res.name)
}
