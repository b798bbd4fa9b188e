package googleads

import (
	"context"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

// Credentials holds the OAuth2 and developer-token material needed to call
// the Google Ads API. The on-disk layout matches the standard
// google-ads.yaml used by the official client libraries.
type Credentials struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	DeveloperToken string `yaml:"developer_token"`
}

// LoadCredentials reads a google-ads.yaml credentials file.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, eris.Wrapf(err, "googleads: read credentials %s", path)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, eris.Wrapf(err, "googleads: parse credentials %s", path)
	}

	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" || creds.DeveloperToken == "" {
		return Credentials{}, eris.Errorf("googleads: credentials file %s is missing required fields", path)
	}
	return creds, nil
}

// transport returns an http.RoundTripper that refreshes and attaches OAuth2
// access tokens derived from the stored refresh token.
func (c Credentials) transport() http.RoundTripper {
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	src := cfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: c.RefreshToken})
	return &oauth2.Transport{Source: src}
}
