package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{project: "storefront-prod"}

	cases := []struct {
		res  Resource
		want string
	}{
		{Subscription("sf-analytics-worker"), "projects/storefront-prod/subscriptions/sf-analytics-worker"},
		{Subscription("projects/other/subscriptions/custom"), "projects/other/subscriptions/custom"},
		{Topic(" sf-order-events "), "projects/storefront-prod/topics/sf-order-events"},
	}
	for _, tc := range cases {
		if got := c.resourceName(tc.res); got != tc.want {
			t.Errorf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, nil); err == nil {
		t.Fatal("expected error without project id")
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("sf-order-events") != nil {
		t.Fatal("expected nil publisher")
	}
	if c.Subscriber("sf-analytics-worker") != nil {
		t.Fatal("expected nil subscriber")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
