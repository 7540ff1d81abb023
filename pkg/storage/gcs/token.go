package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURI  = "https://oauth2.googleapis.com/token"
	readOnlyScope    = "https://www.googleapis.com/auth/devstorage.read_only"
	metadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	tokenRefreshSkew = time.Minute
)

// oauthToken is the token endpoint and metadata server response body.
type oauthToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenCache hands out a bearer token, exchanging a new one when the cached
// token is within tokenRefreshSkew of expiring.
type tokenCache struct {
	exchange func(context.Context) (*http.Request, error)
	http     *http.Client

	mu      sync.Mutex
	current string
	expires time.Time
}

func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != "" && time.Now().Add(tokenRefreshSkew).Before(c.expires) {
		return c.current, nil
	}

	req, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcs token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gcs token: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var tok oauthToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("gcs token: decode: %w", err)
	}
	c.current = tok.AccessToken
	c.expires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.current, nil
}

// jwtBearerTokens exchanges a self-signed assertion for an access token.
func jwtBearerTokens(client *http.Client, sa *serviceAccountInfo) *tokenCache {
	return &tokenCache{http: client, exchange: func(ctx context.Context) (*http.Request, error) {
		assertion, err := sa.assertion(time.Now())
		if err != nil {
			return nil, err
		}
		form := url.Values{
			"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
			"assertion":  {assertion},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.tokenURI, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}}
}

// metadataTokens reads the attached service account token on GCP compute.
func metadataTokens(client *http.Client) *tokenCache {
	return &tokenCache{http: client, exchange: func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataTokenURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Metadata-Flavor", "Google")
		return req, nil
	}}
}

func (sa *serviceAccountInfo) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   sa.clientEmail,
		"scope": readOnlyScope,
		"aud":   sa.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(sa.privateKey)
	if err != nil {
		return "", fmt.Errorf("gcs token: sign assertion: %w", err)
	}
	return signed, nil
}

// signRSA produces the RSASSA-PKCS1-v1_5 SHA-256 signature V4 URLs use.
func signRSA(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}
