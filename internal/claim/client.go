package claim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"olmera/internal/domain"
)

// HTTP claims one-time keys over the directory service's JSON API.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the service at base.
func NewHTTP(base string) *HTTP { return &HTTP{Base: base, HTTP: http.DefaultClient} }

// claimRequest asks for one Curve25519 one-time key per listed device.
type claimRequest struct {
	TxnID       string                                        `json:"txn_id"`
	OneTimeKeys map[domain.UserID]map[domain.DeviceKey]string `json:"one_time_keys"`
}

type claimResponse struct {
	OneTimeKeys map[domain.UserID]map[domain.DeviceKey]domain.ClaimedKey `json:"one_time_keys"`
	Failures    map[domain.DeviceKey]string                              `json:"failures,omitempty"`
}

// ClaimOneTimeKeys requests a one-time key for every device in the batch.
// Per-device misses come back in the result's Failures; an error is
// reserved for the request itself failing.
func (c *HTTP) ClaimOneTimeKeys(
	ctx context.Context,
	devicesByUser map[domain.UserID][]domain.DeviceKey,
) (domain.ClaimResult, error) {
	req := claimRequest{
		TxnID:       uuid.NewString(),
		OneTimeKeys: make(map[domain.UserID]map[domain.DeviceKey]string, len(devicesByUser)),
	}
	for user, keys := range devicesByUser {
		req.OneTimeKeys[user] = make(map[domain.DeviceKey]string, len(keys))
		for _, key := range keys {
			req.OneTimeKeys[user][key] = "curve25519"
		}
	}

	var resp claimResponse
	if err := c.post(ctx, "/keys/claim", req, &resp); err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{
		OneTimeKeys: resp.OneTimeKeys,
		Failures:    resp.Failures,
	}, nil
}

func (c *HTTP) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("claim post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Compile-time assertion that HTTP implements domain.KeyClaimer.
var _ domain.KeyClaimer = (*HTTP)(nil)
