package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions picks inline JSON credentials over a credentials file.
// With neither set the Google clients fall back to default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if js := strings.TrimSpace(g.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
