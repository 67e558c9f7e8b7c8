package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/kv"
	"github.com/pure-golang/bikerental/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	// Value of a claimed key whose request has not finished yet.
	pendingMarker = ""
)

// storedResponse is the cached outcome of a request with an idempotency key.
type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`

	replayed bool
}

func (s *storedResponse) write(w http.ResponseWriter) {
	if s.replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeRaw(w, s.Status, s.Body)
}

// idempotencyClaim is held by the request that first used a key.
type idempotencyClaim struct {
	api *API
	key string
}

// claimIdempotencyKey reserves key for this request. When the key was already
// used it returns the stored response, or a 409 response while the first
// request is still running. An empty key yields a no-op claim.
func (a *API) claimIdempotencyKey(ctx context.Context, key string) (*idempotencyClaim, *storedResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return &idempotencyClaim{}, nil, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, rejection(http.StatusBadRequest, "Idempotency-Key is too long"), nil
	}

	storeKey := "idempotency:rentals:" + key
	ok, err := a.opts.Idempotency.SetNX(ctx, storeKey, pendingMarker, a.cfg.IdempotencyTTL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to claim idempotency key")
	}
	if ok {
		return &idempotencyClaim{api: a, key: storeKey}, nil, nil
	}

	raw, err := a.opts.Idempotency.Get(ctx, storeKey)
	if errors.Is(err, kv.ErrKeyNotFound) || (err == nil && raw == pendingMarker) {
		return nil, rejection(http.StatusConflict, "A request with this Idempotency-Key is in progress"), nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read idempotency key")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode stored response")
	}
	stored.replayed = true
	return nil, &stored, nil
}

func rejection(status int, message string) *storedResponse {
	body, _ := json.Marshal(envelope{Success: false, Message: message})
	return &storedResponse{Status: status, Body: body}
}

// commit stores the response for replays.
func (c *idempotencyClaim) commit(ctx context.Context, status int, body []byte) {
	if c.api == nil {
		return
	}

	raw, err := json.Marshal(storedResponse{Status: status, Body: body})
	if err == nil {
		err = c.api.opts.Idempotency.Set(ctx, c.key, string(raw), c.api.cfg.IdempotencyTTL)
	}
	logger.FromContextWithErrIf(ctx, err).Warn("Failed to store idempotent response")
}

// release frees the key so the client can retry after a failed request.
func (c *idempotencyClaim) release(ctx context.Context) {
	if c == nil || c.api == nil {
		return
	}

	err := c.api.opts.Idempotency.Delete(ctx, c.key)
	logger.FromContextWithErrIf(ctx, err).Warn("Failed to release idempotency key")
}
