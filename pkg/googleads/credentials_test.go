package googleads

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "google-ads.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCredentials(t *testing.T) {
	path := writeCredsFile(t, `
client_id: my-client-id
client_secret: my-client-secret
refresh_token: my-refresh-token
developer_token: my-dev-token
`)

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "my-client-id", creds.ClientID)
	assert.Equal(t, "my-dev-token", creds.DeveloperToken)
}

func TestLoadCredentialsMissingFields(t *testing.T) {
	path := writeCredsFile(t, `
client_id: my-client-id
client_secret: my-client-secret
`)

	_, err := LoadCredentials(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
