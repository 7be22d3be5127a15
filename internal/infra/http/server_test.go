package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"receiptd/internal/config"
	"receiptd/internal/domain"
	"receiptd/internal/infra/crypto"
	"receiptd/internal/infra/keyset"
	"receiptd/internal/infra/ratelimit"
	"receiptd/internal/usecase"
)

const testAdminKey = "admin-secret"

var b64 = base64.RawURLEncoding

type memRegistry struct {
	mu   sync.Mutex
	sets map[string]domain.StoredKeySet
}

func (m *memRegistry) Put(ctx context.Context, rec domain.StoredKeySet) (domain.StoredKeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets == nil {
		m.sets = make(map[string]domain.StoredKeySet)
	}
	rec.ID = "id-" + rec.Name
	rec.UpdatedAt = rec.FetchedAt
	m.sets[rec.Name] = rec
	return rec, nil
}

func (m *memRegistry) Get(ctx context.Context, name string) (*domain.StoredKeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: key set %q", domain.ErrNotFound, name)
	}
	return &rec, nil
}

func (m *memRegistry) List(ctx context.Context) ([]domain.StoredKeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]domain.StoredKeySet, 0, len(names))
	for _, name := range names {
		out = append(out, m.sets[name])
	}
	return out, nil
}

type signedFixture struct {
	keySet  domain.KeySet
	jwks    []byte
	receipt []byte
}

func newSignedFixture(t *testing.T, payload string) signedFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key := &domain.OKPKey{Crv: domain.CurveEd25519, X: b64.EncodeToString(pub)}
	kid, err := crypto.Thumbprint(key)
	if err != nil {
		t.Fatalf("thumbprint: %v", err)
	}
	canonical, err := crypto.CanonicalizeJSON([]byte(payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	protected := b64.EncodeToString([]byte(`{"alg":"EdDSA","kid":"` + kid + `"}`))
	sig := ed25519.Sign(priv, []byte(protected+"."+b64.EncodeToString(canonical)))

	receipt, err := json.Marshal(domain.Receipt{
		Protected: protected,
		Payload:   json.RawMessage(payload),
		Signature: b64.EncodeToString(sig),
		Kid:       kid,
	})
	if err != nil {
		t.Fatalf("marshal receipt: %v", err)
	}
	ks := domain.KeySet{Keys: []domain.Key{key}}
	jwks, err := json.Marshal(ks)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return signedFixture{keySet: ks, jwks: jwks, receipt: receipt}
}

func testConfig() config.Config {
	return config.Config{
		HTTPAddr:        ":0",
		AdminAPIKey:     testAdminKey,
		RateLimitWindow: time.Minute,
		MaxBodyBytes:    1 << 20,
	}
}

func newTestServer(t *testing.T, cfg config.Config, deps ServerDeps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServerWithDeps(cfg, deps)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeVerdict(t *testing.T, w *httptest.ResponseRecorder) domain.Verdict {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var v domain.Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d body=%s", w.Code, status, w.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != code {
		t.Fatalf("code = %q, want %q (%s)", resp.Code, code, resp.Message)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig(), ServerDeps{})
	w := doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["registry"] != "no-db" || body["cache"] != "memory" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestVerify_InlineKeySet(t *testing.T) {
	fx := newSignedFixture(t, `{"amount":100,"currency":"EUR"}`)
	s := newTestServer(t, testConfig(), ServerDeps{})

	w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]json.RawMessage{
		"receipt": fx.receipt,
		"jwks":    fx.jwks,
	}, nil)
	if v := decodeVerdict(t, w); !v.OK || v.Reason != "" {
		t.Fatalf("expected acceptance, got %+v", v)
	}
	if strings.Contains(w.Body.String(), "reason") {
		t.Fatalf("accepted verdict must omit reason: %s", w.Body.String())
	}
}

func TestVerify_RejectionIsNotAnError(t *testing.T) {
	fx := newSignedFixture(t, `{"amount":100}`)
	var receipt map[string]any
	if err := json.Unmarshal(fx.receipt, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	receipt["payload"] = map[string]any{"amount": 101}
	s := newTestServer(t, testConfig(), ServerDeps{})

	w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]any{
		"receipt": receipt,
		"jwks":    json.RawMessage(fx.jwks),
	}, nil)
	v := decodeVerdict(t, w)
	if v.OK || v.Reason != domain.ReasonInvalidSignature {
		t.Fatalf("expected %q rejection, got %+v", domain.ReasonInvalidSignature, v)
	}
}

func TestVerify_SystemErrors(t *testing.T) {
	fx := newSignedFixture(t, `{"a":1}`)
	s := newTestServer(t, testConfig(), ServerDeps{})

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"not json", "{", http.StatusBadRequest, "INVALID_JSON"},
		{"missing receipt", map[string]any{"jwks": json.RawMessage(fx.jwks)}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"unknown kty", map[string]any{
			"receipt": json.RawMessage(fx.receipt),
			"jwks":    json.RawMessage(`{"keys":[{"kty":"RSA","n":"AQAB","e":"AQAB"}]}`),
		}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"jwks and key_set", map[string]any{
			"receipt": json.RawMessage(fx.receipt),
			"jwks":    json.RawMessage(fx.jwks),
			"key_set": "prod",
		}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"no key source", map[string]any{"receipt": json.RawMessage(fx.receipt)}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"registry disabled", map[string]any{
			"receipt": json.RawMessage(fx.receipt),
			"key_set": "prod",
		}, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", tc.body, nil)
			decodeError(t, w, tc.status, tc.code)
		})
	}
}

func TestVerify_DefaultJWKSURL(t *testing.T) {
	fx := newSignedFixture(t, `{"n":[1,2,3]}`)
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fx.jwks)
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.JWKSURL = upstream.URL
	source := &usecase.KeySetSource{
		Cache:   keyset.NewMemoryStore(keyset.MemoryStoreConfig{TTL: time.Minute}),
		Fetcher: keyset.NewHTTPFetcher(keyset.FetcherConfig{Client: upstream.Client(), Attempts: 1}),
	}
	s := newTestServer(t, cfg, ServerDeps{KeySets: source})

	for i := 0; i < 3; i++ {
		w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]any{"receipt": json.RawMessage(fx.receipt)}, nil)
		if v := decodeVerdict(t, w); !v.OK {
			t.Fatalf("expected acceptance, got %+v", v)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one upstream fetch, got %d", n)
	}
}

func TestVerify_UpstreamFailureIsNetworkError(t *testing.T) {
	fx := newSignedFixture(t, `{}`)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.JWKSURL = upstream.URL
	source := &usecase.KeySetSource{
		Cache:   keyset.NewMemoryStore(keyset.MemoryStoreConfig{}),
		Fetcher: keyset.NewHTTPFetcher(keyset.FetcherConfig{Client: upstream.Client(), Attempts: 1}),
	}
	s := newTestServer(t, cfg, ServerDeps{KeySets: source})

	w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]any{"receipt": json.RawMessage(fx.receipt)}, nil)
	decodeError(t, w, http.StatusBadGateway, "NETWORK_ERROR")
}

func TestKeySetRegistry_PutGetVerify(t *testing.T) {
	fx := newSignedFixture(t, `{"id":"r-1"}`)
	source := &usecase.KeySetSource{Registry: &memRegistry{}}
	s := newTestServer(t, testConfig(), ServerDeps{KeySets: source, RegistryEnabled: true})

	body := map[string]any{"jwks": json.RawMessage(fx.jwks)}
	w := doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", body, nil)
	decodeError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", body, map[string]string{"X-Admin-Key": "wrong"})
	decodeError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", body, map[string]string{"X-Admin-Key": testAdminKey})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/v1/key-sets/prod", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d body=%s", w.Code, w.Body.String())
	}
	var got struct {
		Name string          `json:"name"`
		JWKS json.RawMessage `json:"jwks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "prod" {
		t.Fatalf("name = %q", got.Name)
	}
	if ks, err := domain.ParseKeySet(got.JWKS); err != nil || len(ks.Keys) != 1 {
		t.Fatalf("stored jwks: %v %+v", err, ks)
	}

	w = doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]any{
		"receipt": json.RawMessage(fx.receipt),
		"key_set": "prod",
	}, nil)
	if v := decodeVerdict(t, w); !v.OK {
		t.Fatalf("expected acceptance, got %+v", v)
	}

	w = doJSON(t, s, http.MethodGet, "/v1/key-sets/missing", nil, nil)
	decodeError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = doJSON(t, s, http.MethodPut, "/v1/key-sets/backup", body, map[string]string{"X-Admin-Key": testAdminKey})
	if w.Code != http.StatusOK {
		t.Fatalf("put backup status = %d body=%s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, "/v1/key-sets", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d body=%s", w.Code, w.Body.String())
	}
	var listing struct {
		KeySets []struct {
			Name string `json:"name"`
		} `json:"key_sets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listing.KeySets) != 2 || listing.KeySets[0].Name != "backup" || listing.KeySets[1].Name != "prod" {
		t.Fatalf("unexpected listing: %s", w.Body.String())
	}
}

func TestKeySetList_RegistryDisabled(t *testing.T) {
	s := newTestServer(t, testConfig(), ServerDeps{})
	w := doJSON(t, s, http.MethodGet, "/v1/key-sets", nil, nil)
	decodeError(t, w, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE")
}

func TestKeySetRegistry_PutRejectsInvalidBodies(t *testing.T) {
	source := &usecase.KeySetSource{Registry: &memRegistry{}}
	s := newTestServer(t, testConfig(), ServerDeps{KeySets: source, RegistryEnabled: true})
	admin := map[string]string{"X-Admin-Key": testAdminKey}

	w := doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", map[string]any{}, admin)
	decodeError(t, w, http.StatusBadRequest, "INVALID_FORMAT")

	w = doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", map[string]any{"jwks": map[string]any{"keys": []any{}}}, admin)
	decodeError(t, w, http.StatusBadRequest, "INVALID_FORMAT")

	w = doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", map[string]any{
		"jwks": map[string]any{"keys": []any{map[string]string{"kty": "EC", "crv": "P-384", "x": "AA", "y": "AA"}}},
	}, admin)
	decodeError(t, w, http.StatusBadRequest, "UNSUPPORTED_KEY")
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAPIKey = ""
	s := newTestServer(t, cfg, ServerDeps{KeySets: &usecase.KeySetSource{Registry: &memRegistry{}}})
	w := doJSON(t, s, http.MethodPut, "/v1/key-sets/prod", map[string]any{"url": "https://example.com/jwks"}, map[string]string{"X-Admin-Key": ""})
	decodeError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestThumbprintEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), ServerDeps{})
	body := `{"keys":[{"kty":"OKP","crv":"Ed25519","x":"11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"}]}`
	w := doJSON(t, s, http.MethodPost, "/v1/keys:thumbprint", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp thumbprintResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Thumbprints) != 1 || resp.Thumbprints[0] != "kPrK_qmxVWaYVA9wwBF6Iuo3vVzz7TxHCTwXBygrS4k" {
		t.Fatalf("unexpected thumbprints: %v", resp.Thumbprints)
	}

	w = doJSON(t, s, http.MethodPost, "/v1/keys:thumbprint", `{"keys":[{"kty":"oct","k":"AA"}]}`, nil)
	decodeError(t, w, http.StatusBadRequest, "INVALID_FORMAT")
}

func TestRateLimit(t *testing.T) {
	fx := newSignedFixture(t, `{}`)
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	s := newTestServer(t, cfg, ServerDeps{
		RateLimiter: ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{}),
	})
	body := map[string]any{"receipt": json.RawMessage(fx.receipt), "jwks": json.RawMessage(fx.jwks)}

	w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w.Header().Get("RateLimit-Limit") != "1" || w.Header().Get("RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate limit headers: %v", w.Header())
	}
	w = doJSON(t, s, http.MethodPost, "/v1/receipts:verify", body, nil)
	decodeError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimit_Thumbprint(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	s := newTestServer(t, cfg, ServerDeps{
		RateLimiter: ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{}),
	})
	body := `{"keys":[{"kty":"OKP","crv":"Ed25519","x":"11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"}]}`
	if w := doJSON(t, s, http.MethodPost, "/v1/keys:thumbprint", body, nil); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := doJSON(t, s, http.MethodPost, "/v1/keys:thumbprint", body, nil)
	decodeError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")

	// Limits are per route: verify still has its own window.
	fx := newSignedFixture(t, `{}`)
	w = doJSON(t, s, http.MethodPost, "/v1/receipts:verify", map[string]any{
		"receipt": json.RawMessage(fx.receipt),
		"jwks":    json.RawMessage(fx.jwks),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify after thumbprint limit: status = %d", w.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, fmt.Errorf("redis down")
}

func TestRateLimit_FailClosed(t *testing.T) {
	fx := newSignedFixture(t, `{}`)
	cfg := testConfig()
	cfg.RateLimitRequests = 5
	body := map[string]any{"receipt": json.RawMessage(fx.receipt), "jwks": json.RawMessage(fx.jwks)}

	open := newTestServer(t, cfg, ServerDeps{RateLimiter: failingLimiter{}})
	if w := doJSON(t, open, http.MethodPost, "/v1/receipts:verify", body, nil); w.Code != http.StatusOK {
		t.Fatalf("fail-open status = %d", w.Code)
	}

	cfg.RateLimitFailClosed = true
	closed := newTestServer(t, cfg, ServerDeps{RateLimiter: failingLimiter{}})
	w := doJSON(t, closed, http.MethodPost, "/v1/receipts:verify", body, nil)
	decodeError(t, w, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE")
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	s := newTestServer(t, cfg, ServerDeps{})
	body := `{"receipt":{"protected":"` + strings.Repeat("A", 64) + `"}}`
	w := doJSON(t, s, http.MethodPost, "/v1/receipts:verify", body, nil)
	decodeError(t, w, http.StatusBadRequest, "INVALID_JSON")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, testConfig(), ServerDeps{})
	w := doJSON(t, s, http.MethodPost, "/v1/receipts:sign", `{}`, nil)
	decodeError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), ServerDeps{})
	doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	w := doJSON(t, s, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "receiptd_") {
		t.Fatalf("expected receiptd metrics in exposition")
	}
}
