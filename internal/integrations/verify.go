package integrations

import (
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

const (
	slackSignatureVersion = "v0"
	slackTolerance        = 5 * time.Minute
)

// VerifyTeamsSecret checks the shared secret header sent by the Teams connector.
func VerifyTeamsSecret(configured, provided string) error {
	if strings.TrimSpace(configured) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "teams integration is not configured")
	}
	if !security.EqualSecrets(configured, strings.TrimSpace(provided)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid integration secret")
	}
	return nil
}

// VerifySlackSignature validates a Slack v0 request signature over the raw body.
// Requests whose timestamp is further than five minutes from now are rejected.
func VerifySlackSignature(signingSecret, timestamp, signature string, body []byte, now time.Time) error {
	if strings.TrimSpace(signingSecret) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "slack integration is not configured")
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid slack request timestamp")
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > slackTolerance {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "stale slack request")
	}

	base := slackSignatureVersion + ":" + strconv.FormatInt(ts, 10) + ":" + string(body)
	expected := slackSignatureVersion + "=" + security.HMACSHA256Hex([]byte(signingSecret), []byte(base))
	if !security.EqualSecrets(expected, strings.TrimSpace(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid slack signature")
	}
	return nil
}
