package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sapira-ai/pharo-backend/api/responses"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	pkgredis "github.com/sapira-ai/pharo-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 200

	defaultIdempotencyTTL = 24 * time.Hour
	triageIdempotencyTTL  = 7 * 24 * time.Hour
	inFlightTTL           = 30 * time.Second
	maxRequestBody        = 1 << 20
)

type idempotencyRule struct {
	method string
	path   *regexp.Regexp
	ttl    time.Duration
}

// Rules match the concrete request path so they work at any router depth.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, regexp.MustCompile(`^/api/v1/auth/register$`), defaultIdempotencyTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/organizations/[^/]+/invitations$`), defaultIdempotencyTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/organizations/[^/]+/initiatives$`), defaultIdempotencyTTL},
	{http.MethodPost, regexp.MustCompile(`^/api/v1/organizations/[^/]+/issues/[^/]+/triage$`), triageIdempotencyTTL},
}

func ruleFor(method, path string) (time.Duration, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.path.MatchString(path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// storedResponse is what a replay writes back.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the routes in idempotencyRules. Requests without a key pass through. A key
// whose first request is still running is rejected with 409. Only 2xx
// responses are stored.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := ruleFor(r.Method, r.URL.Path)
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if !ok || store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxIdempotencyKey {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)
			recordKey := store.IdempotencyKey(requestScope(r), key)

			stored, err := loadResponse(ctx, store, recordKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if stored != nil {
				if stored.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, stored)
				return
			}

			lockKey := recordKey + ":inflight"
			acquired, err := store.SetNX(ctx, lockKey, hash, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !acquired {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				return
			}
			defer func() {
				if err := store.Del(context.WithoutCancel(ctx), lockKey); err != nil && logg != nil {
					logg.WarnErr(ctx, "idempotency.release_failed", err)
				}
			}()

			buf := &bufferedResponse{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(buf, r)

			status := buf.code()
			if status < 200 || status >= 300 {
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: buf.Header().Get("Content-Type"),
				Body:        buf.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, recordKey, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func loadResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func replay(w http.ResponseWriter, stored *storedResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// requestScope keeps keys from different callers and organizations apart.
func requestScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		chi.URLParam(r, OrganizationParam),
		r.Method,
		r.URL.Path,
	}, "|")
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type bufferedResponse struct {
	statusRecorder
	body bytes.Buffer
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.statusRecorder.Write(p)
}
