package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"receiptd/internal/domain"
	"receiptd/internal/infra/metrics"
	"receiptd/internal/logger"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type verifyRequest struct {
	Receipt json.RawMessage `json:"receipt"`
	JWKS    json.RawMessage `json:"jwks,omitempty"`
	KeySet  string          `json:"key_set,omitempty"`
}

type thumbprintResponse struct {
	Thumbprints []string `json:"thumbprints"`
}

type keySetListResponse struct {
	KeySets []keySetResponse `json:"key_sets"`
}

type putKeySetRequest struct {
	JWKS json.RawMessage `json:"jwks,omitempty"`
	URL  string          `json:"url,omitempty"`
}

type keySetResponse struct {
	Name      string        `json:"name"`
	SourceURL string        `json:"source_url,omitempty"`
	FetchedAt string        `json:"fetched_at"`
	UpdatedAt string        `json:"updated_at,omitempty"`
	Keys      domain.KeySet `json:"jwks"`
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c, routeReceiptsVerify) {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if len(req.Receipt) == 0 || string(req.Receipt) == "null" {
		writeError(c, fmt.Errorf("%w: receipt is required", domain.ErrInvalidFormat))
		return
	}
	var receipt domain.Receipt
	if err := json.Unmarshal(req.Receipt, &receipt); err != nil {
		writeError(c, fmt.Errorf("%w: receipt: %v", domain.ErrInvalidFormat, err))
		return
	}

	start := time.Now()
	ks, err := s.resolveKeySet(c, req)
	if err != nil {
		metrics.ObserveVerification(domain.Verdict{}, err, time.Since(start))
		writeError(c, err)
		return
	}
	verdict, err := s.verifyUC.Execute(receipt, ks)
	metrics.ObserveVerification(verdict, err, time.Since(start))
	if err != nil {
		writeError(c, err)
		return
	}
	if !verdict.OK {
		logger.Debug("receipt rejected", "kid", receipt.Kid, "reason", verdict.Reason)
	}
	c.JSON(http.StatusOK, verdict)
}

// resolveKeySet picks the verification keys: an inline jwks, a registry
// name, or the configured default URL, in that order of precedence. Supplying
// both jwks and key_set is ambiguous and rejected.
func (s *Server) resolveKeySet(c *gin.Context, req verifyRequest) (domain.KeySet, error) {
	hasInline := len(req.JWKS) > 0 && string(req.JWKS) != "null"
	name := strings.TrimSpace(req.KeySet)
	switch {
	case hasInline && name != "":
		return domain.KeySet{}, fmt.Errorf("%w: jwks and key_set are mutually exclusive", domain.ErrInvalidFormat)
	case hasInline:
		return domain.ParseKeySet(req.JWKS)
	case name != "":
		return s.keySets.FromRegistry(c.Request.Context(), name)
	case s.cfg.JWKSURL != "":
		return s.keySets.FromURL(c.Request.Context(), s.cfg.JWKSURL)
	default:
		return domain.KeySet{}, fmt.Errorf("%w: no key set supplied and no default jwks_url configured", domain.ErrInvalidFormat)
	}
}

func (s *Server) handleThumbprint(c *gin.Context) {
	if !s.enforceRateLimit(c, routeKeysThumbprint) {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "unreadable body")
		return
	}
	ks, err := domain.ParseKeySet(body)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := thumbprintResponse{Thumbprints: make([]string, 0, len(ks.Keys))}
	for i, key := range ks.Keys {
		tp, err := s.crypto.Thumbprint(key)
		if err != nil {
			writeError(c, fmt.Errorf("keys[%d]: %w", i, err))
			return
		}
		resp.Thumbprints = append(resp.Thumbprints, tp)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListKeySets(c *gin.Context) {
	recs, err := s.keySets.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := keySetListResponse{KeySets: make([]keySetResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.KeySets = append(resp.KeySets, buildKeySetResponse(rec))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetKeySet(c *gin.Context) {
	rec, err := s.keySets.Lookup(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildKeySetResponse(*rec))
}

func (s *Server) handlePutKeySet(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req putKeySetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	hasInline := len(req.JWKS) > 0 && string(req.JWKS) != "null"
	url := strings.TrimSpace(req.URL)
	if hasInline == (url != "") {
		writeError(c, fmt.Errorf("%w: exactly one of jwks or url is required", domain.ErrInvalidFormat))
		return
	}

	var (
		rec domain.StoredKeySet
		err error
	)
	if hasInline {
		var ks domain.KeySet
		ks, err = domain.ParseKeySet(req.JWKS)
		if err == nil {
			rec, err = s.keySets.Import(c.Request.Context(), c.Param("name"), "", ks)
		}
	} else {
		rec, err = s.keySets.ImportURL(c.Request.Context(), c.Param("name"), url)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildKeySetResponse(rec))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost {
		switch c.Request.URL.Path {
		case "/v1/receipts:verify":
			s.handleVerify(c)
			return
		case "/v1/keys:thumbprint":
			s.handleThumbprint(c)
			return
		}
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// requestMiddleware caps request bodies, counts requests and logs them.
func (s *Server) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && s.cfg.MaxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
			if !isKnownColonRoute(route) {
				route = "unmatched"
			}
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		logger.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func isKnownColonRoute(path string) bool {
	return path == "/v1/receipts:verify" || path == "/v1/keys:thumbprint"
}

func buildKeySetResponse(rec domain.StoredKeySet) keySetResponse {
	resp := keySetResponse{
		Name:      rec.Name,
		SourceURL: rec.SourceURL,
		FetchedAt: rec.FetchedAt.UTC().Format(time.RFC3339),
		Keys:      rec.Keys,
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, domain.ErrorCode(err)
	switch {
	case errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrCryptographic),
		errors.Is(err, domain.ErrUnsupportedKey):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNetwork):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrRegistryUnavailable):
		status = http.StatusServiceUnavailable
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		message = "internal error"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
