package instance

import (
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

// GetID identifies this process replica. STOREFRONT_INSTANCE_ID wins, then the
// platform dyno name, then the hostname.
func GetID() string {
	if id := env.First("STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
