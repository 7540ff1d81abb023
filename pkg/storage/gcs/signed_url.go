package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	signingAlgorithm = "GOOG4-RSA-SHA256"
	// MaxSignedURLExpiry is the longest lifetime V4 signatures accept.
	MaxSignedURLExpiry = 7 * 24 * time.Hour
)

// SignedReadURL returns a V4 signed GET URL for object in the default bucket.
func (c *Client) SignedReadURL(_ context.Context, object string, expires time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("gcs client not initialized")
	}
	if c.serviceAccount == nil {
		return "", ErrSigningUnavailable
	}
	object = strings.TrimPrefix(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("object name is required")
	}
	if c.defaultBucket == "" {
		return "", errors.New("bucket is required")
	}
	if expires <= 0 {
		return "", errors.New("expiry must be positive")
	}
	if expires > MaxSignedURLExpiry {
		expires = MaxSignedURLExpiry
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ts := now().UTC()
	datestamp := ts.Format("20060102")
	timestamp := ts.Format("20060102T150405Z")
	credentialScope := datestamp + "/auto/storage/goog4_request"

	query := map[string]string{
		"X-Goog-Algorithm":     signingAlgorithm,
		"X-Goog-Credential":    c.serviceAccount.clientEmail + "/" + credentialScope,
		"X-Goog-Date":          timestamp,
		"X-Goog-Expires":       strconv.FormatInt(int64(expires/time.Second), 10),
		"X-Goog-SignedHeaders": "host",
	}
	canonicalQuery := canonicalQueryString(query)
	canonicalPath := "/" + uriEncode(c.defaultBucket, false) + "/" + uriEncode(object, false)

	canonicalRequest := strings.Join([]string{
		"GET",
		canonicalPath,
		canonicalQuery,
		"host:" + storageHost + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		timestamp,
		credentialScope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	sig, err := signRSA(c.serviceAccount.privateKey, []byte(stringToSign))
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	return fmt.Sprintf("https://%s%s?%s&X-Goog-Signature=%s",
		storageHost, canonicalPath, canonicalQuery, hex.EncodeToString(sig)), nil
}

func canonicalQueryString(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, uriEncode(k, true)+"="+uriEncode(values[k], true))
	}
	return strings.Join(parts, "&")
}

// uriEncode percent-encodes everything except RFC 3986 unreserved characters.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.', ch == '~':
			b.WriteByte(ch)
		case ch == '/' && !encodeSlash:
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}
