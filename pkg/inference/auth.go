package inference

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/teslashibe/go-converse/internal/httpc"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// httpClient builds the client a gateway sends requests with.
// API key mode uses a plain client. Vertex mode attaches OAuth2 bearer
// tokens from, in order: an explicit token source, a service account
// file, or Application Default Credentials.
func httpClient(ctx context.Context, cfg *Config) (*http.Client, error) {
	base := cfg.HTTPClient
	if base == nil {
		base = httpc.NewClient(cfg.Timeout)
	}
	if !cfg.Vertex() {
		return base, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var hc *http.Client
	switch {
	case cfg.TokenSource != nil:
		hc = oauth2.NewClient(ctx, cfg.TokenSource)

	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("inference: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("inference: parse credentials: %w", err)
		}
		hc = oauth2.NewClient(ctx, creds.TokenSource)

	default:
		var err error
		hc, _, err = htransport.NewClient(ctx,
			option.WithScopes(cloudPlatformScope),
			option.WithUserAgent("go-converse"),
		)
		if err != nil {
			return nil, fmt.Errorf("inference: default credentials: %w", err)
		}
	}
	hc.Timeout = base.Timeout
	return hc, nil
}

// vertexBaseURL returns the publisher endpoint for a project and region.
// Model paths are appended the same way as on the public API.
func vertexBaseURL(project, location string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google",
		location, project, location)
}
