package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// DefaultTokenURL is the client-credentials endpoint.
const DefaultTokenURL = "https://accounts.spotify.com/api/token"

// TokenSource supplies bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops a cached token after the API rejected it.
	Invalidate()
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
func (StaticToken) Invalidate()                             {}

// ClientCredentials fetches and caches app tokens.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	URL          string

	http *resty.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClientCredentials(clientID, clientSecret string) *ClientCredentials {
	return &ClientCredentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		URL:          DefaultTokenURL,
		http:         resty.New().SetTimeout(30 * time.Second),
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Refresh a minute early so long pages don't straddle expiry.
	if c.token != "" && c.now().Before(c.expires.Add(-time.Minute)) {
		return c.token, nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", fmt.Errorf("client_id and client_secret must be set")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.ClientID, c.ClientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post(c.URL)
	if err != nil {
		return "", &transportError{fmt.Errorf("requesting token: %w", err)}
	}
	if resp.StatusCode() != 200 {
		return "", newAPIError(resp.StatusCode(), resp.Header().Get("Retry-After"), resp.Body())
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("access token missing from response")
	}

	c.token = tr.AccessToken
	c.expires = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
