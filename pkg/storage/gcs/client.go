// Package gcs signs read URLs for organization logos stored in Cloud Storage
// and checks the bucket for the readiness endpoint.
package gcs

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

const storageHost = "storage.googleapis.com"

// ErrSigningUnavailable means the client runs on metadata credentials, which
// cannot sign URLs.
var ErrSigningUnavailable = errors.New("gcs: signing requires a service account key")

type Client struct {
	httpClient     *http.Client
	defaultBucket  string
	tokens         *tokenCache
	serviceAccount *serviceAccountInfo
	now            func() time.Time
}

type serviceAccountInfo struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
	tokenURI    string
}

// NewClient loads credentials from PHARO_GCP_CREDENTIALS_JSON or the file in
// PHARO_GOOGLE_APPLICATION_CREDENTIALS, falling back to the metadata server,
// and verifies the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("gcs: bucket name is required")
	}
	sa, err := loadServiceAccount(gcp)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		defaultBucket:  cfg.BucketName,
		serviceAccount: sa,
		now:            time.Now,
	}
	if sa != nil {
		c.tokens = jwtBearerTokens(c.httpClient, sa)
	} else {
		c.tokens = metadataTokens(c.httpClient)
		if logg != nil {
			logg.Warn(ctx, "gcs.metadata_credentials: logo urls will not be signed")
		}
	}

	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", c.defaultBucket), "gcs.ready")
	}
	return c, nil
}

// Ping lists at most one object, which needs both a valid token and read
// access to the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokens == nil {
		return errors.New("gcs: client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("https://%s/storage/v1/b/%s/o?maxResults=1&fields=kind", storageHost, url.PathEscape(c.defaultBucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcs ping: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gcs ping %s: %s", c.defaultBucket, resp.Status)
	}
	return nil
}

// loadServiceAccount returns nil without error when no key is configured.
func loadServiceAccount(gcp config.GCPConfig) (*serviceAccountInfo, error) {
	raw := []byte(gcp.CredentialsJSON)
	if len(raw) == 0 && gcp.ApplicationCredentials != "" {
		b, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("gcs credentials: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return parseServiceAccount(raw)
}

func parseServiceAccount(raw []byte) (*serviceAccountInfo, error) {
	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("gcs credentials: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, errors.New("gcs credentials: client_email and private_key are required")
	}
	priv, err := parsePrivateKey([]byte(key.PrivateKey))
	if err != nil {
		return nil, err
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURI
	}
	return &serviceAccountInfo{clientEmail: key.ClientEmail, privateKey: priv, tokenURI: key.TokenURI}, nil
}

// parsePrivateKey accepts PKCS#8 (what Google issues) and PKCS#1 PEM blocks.
func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("gcs credentials: private key is not PEM")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := parsed.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("gcs credentials: private key is not RSA")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
