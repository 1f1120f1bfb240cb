// Package identity is a client for the Keycloak-style identity provider
// admin API. It holds a process-wide admin token cache with an explicit
// single-flight refresh guard: concurrent callers share one in-flight token
// request instead of issuing duplicates.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// expiryMargin is subtracted from the token lifetime so a token is never
// used right at its expiry boundary.
const expiryMargin = time.Minute

// Profile is the subset of the provider's user representation the resolver
// needs.
type Profile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phone     string   `json:"-"`
	Roles     []string `json:"realmRoles,omitempty"`

	Attributes map[string][]string `json:"attributes,omitempty"`
}

// FullName joins first and last name, dropping empty parts.
func (p *Profile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	return name
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client talks to the identity provider admin API using a password-grant
// service account.
type Client struct {
	baseURL  string
	username string
	password string
	clientID string
	http     *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	sf     singleflight.Group

	now func() time.Time // test seam
}

// New creates an identity client. baseURL is the admin realm URL,
// e.g. http://keycloak:8080/admin/realms/apporte.
func New(baseURL, username, password, clientID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		clientID: clientID,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// GetUser fetches one user profile by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.adminToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity get user: http %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("identity decode user: %w", err)
	}
	if phones := p.Attributes["phoneNumber"]; len(phones) > 0 {
		p.Phone = phones[0]
	}
	return &p, nil
}

// adminToken returns a cached admin token, fetching a fresh one through the
// single-flight group when the cache is empty or expired.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("admin-token", func() (any, error) {
		// Re-check under the lock: another caller may have refreshed while
		// we waited to enter the group.
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expiry) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		token, expiry, err := c.fetchToken(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiry = expiry
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetchToken performs the password-grant request.
func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token request: http %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("token decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response missing access_token")
	}

	return tr.AccessToken, c.tokenExpiry(tr), nil
}

// tokenExpiry derives the cache deadline from the token itself. The exp
// claim is authoritative when present; expires_in is the fallback.
func (c *Client) tokenExpiry(tr tokenResponse) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-expiryMargin)
		}
	}
	if tr.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - expiryMargin)
	}
	return c.now().Add(expiryMargin)
}

// tokenURL maps the admin realm URL to the realm's OpenID token endpoint.
func (c *Client) tokenURL() string {
	return strings.Replace(c.baseURL, "/admin/realms/", "/realms/", 1) + "/protocol/openid-connect/token"
}

// ClearTokenCache drops the cached admin token. Useful in tests and when a
// token is revoked out of band.
func (c *Client) ClearTokenCache() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}
