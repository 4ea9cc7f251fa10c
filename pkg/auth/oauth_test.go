package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewOAuth2Config(t *testing.T) {
	credPath := "/path/to/credentials.json"
	tokenPath := "/path/to/token.json"
	scopes := []string{"https://www.googleapis.com/auth/gmail.modify"}

	config := NewOAuth2Config(credPath, tokenPath, scopes...)

	assert.NotNil(t, config)
	assert.Equal(t, credPath, config.CredentialsPath)
	assert.Equal(t, tokenPath, config.TokenPath)
	assert.Equal(t, scopes, config.Scopes)
}

func TestNewOAuth2Config_EmptyScopes(t *testing.T) {
	config := NewOAuth2Config("cred.json", "token.json")

	assert.NotNil(t, config)
	assert.Empty(t, config.Scopes)
}

func TestOAuth2Config_LoadCredentials_ValidationErrors(t *testing.T) {
	t.Run("empty_credentials_path", func(t *testing.T) {
		config := &OAuth2Config{CredentialsPath: ""}

		oauthConfig, err := config.LoadCredentials()
		assert.Error(t, err)
		assert.Nil(t, oauthConfig)
		assert.Contains(t, err.Error(), "could not read credentials file")
	})

	t.Run("nonexistent_credentials_file", func(t *testing.T) {
		config := &OAuth2Config{CredentialsPath: "/nonexistent/path/credentials.json"}

		oauthConfig, err := config.LoadCredentials()
		assert.Error(t, err)
		assert.Nil(t, oauthConfig)
	})

	t.Run("malformed_credentials_file", func(t *testing.T) {
		dir := t.TempDir()
		credPath := filepath.Join(dir, "credentials.json")
		require.NoError(t, os.WriteFile(credPath, []byte("not json"), 0600))

		config := &OAuth2Config{CredentialsPath: credPath}

		oauthConfig, err := config.LoadCredentials()
		assert.Error(t, err)
		assert.Nil(t, oauthConfig)
		assert.Contains(t, err.Error(), "could not parse credentials file")
	})
}

func TestOAuth2Config_TokenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	config := &OAuth2Config{TokenPath: filepath.Join(dir, "nested", "token.json")}

	token := &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}

	require.NoError(t, config.SaveToken(token))

	// Token file must not be world readable
	info, err := os.Stat(config.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := config.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, token.TokenType, loaded.TokenType)
	assert.WithinDuration(t, token.Expiry, loaded.Expiry, time.Second)
}

func TestOAuth2Config_LoadToken_Missing(t *testing.T) {
	config := &OAuth2Config{TokenPath: filepath.Join(t.TempDir(), "missing.json")}

	_, err := config.LoadToken()
	assert.Error(t, err)
}

// A request issued after the authenticator's token changed must carry the new
// credential, not the one its transport saw first.
func TestAuthenticator_TokenSource_SeesReplacedToken(t *testing.T) {
	var mu sync.Mutex
	var authHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := NewAuthenticator(NewOAuth2Config("cred.json", "token.json"))
	auth.token = &oauth2.Token{
		AccessToken: "stale",
		TokenType:   "Bearer",
		// Locally still valid; only the remote end knows it is dead
		Expiry: time.Now().Add(time.Hour),
	}

	client := &http.Client{
		Transport: &oauth2.Transport{Source: auth.TokenSource(context.Background())},
	}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// The token swap Refresh performs once the endpoint hands back a fresh one
	auth.mu.Lock()
	auth.token = &oauth2.Token{
		AccessToken: "fresh",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}
	auth.mu.Unlock()

	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, authHeaders, 2)
	assert.Equal(t, "Bearer stale", authHeaders[0])
	assert.Equal(t, "Bearer fresh", authHeaders[1])
}

func TestAuthenticator_Refresh_NoCredentials(t *testing.T) {
	auth := NewAuthenticator(&OAuth2Config{
		CredentialsPath: filepath.Join(t.TempDir(), "missing.json"),
	})

	err := auth.Refresh(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "could not read credentials file")
}
