package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
	"github.com/escrowroom/escrowroom/internal/infrastructure/keystore"
)

// HTTPClient talks JSON to an external custody service. Each method maps to
// one endpoint; non-2xx responses surface as errors so the caller's
// transition stays uncommitted.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	keys    *keystore.StaticKeyStore
	logger  zerolog.Logger
}

var _ settlement.Gateway = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client against baseURL. keys may be nil
// when the custody service runs without authentication.
func NewHTTPClient(baseURL string, timeout time.Duration, keys *keystore.StaticKeyStore, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		keys:    keys,
		logger:  logger.With().Str("component", "gateway.http").Logger(),
	}
}

type deriveAddressResponse struct {
	Address string `json:"address"`
}

func (g *HTTPClient) DeriveAddress(ctx context.Context, roomID uuid.UUID, chainID string) (string, error) {
	var out deriveAddressResponse
	err := g.post(ctx, "/v1/addresses", chainID, map[string]any{
		"dealRef": roomID.String(),
		"chainId": chainID,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("gateway returned empty address")
	}
	return out.Address, nil
}

func (g *HTTPClient) CreateDeal(ctx context.Context, roomID uuid.UUID, chainID string, depositAmount int64, feePayer room.FeePayer) error {
	return g.post(ctx, "/v1/deals", chainID, map[string]any{
		"dealRef":       roomID.String(),
		"chainId":       chainID,
		"depositAmount": depositAmount,
		"feePayer":      string(feePayer),
	}, nil)
}

func (g *HTTPClient) CheckDeposit(ctx context.Context, roomID uuid.UUID, expectedAmount int64, chainID string) (*settlement.DepositResult, error) {
	var out settlement.DepositResult
	err := g.post(ctx, "/v1/deals/"+roomID.String()+"/check-deposit", chainID, map[string]any{
		"expectedAmount": expectedAmount,
		"chainId":        chainID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type payoutResponse struct {
	TxRef string `json:"txRef"`
}

func (g *HTTPClient) ExecuteRelease(ctx context.Context, roomID uuid.UUID, destination string, amount int64, chainID string) (string, error) {
	var out payoutResponse
	err := g.post(ctx, "/v1/deals/"+roomID.String()+"/release", chainID, map[string]any{
		"destination": destination,
		"amount":      amount,
		"chainId":     chainID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TxRef, nil
}

func (g *HTTPClient) ExecuteRefund(ctx context.Context, roomID uuid.UUID, destination string, amount int64, chainID string) (string, error) {
	var out payoutResponse
	err := g.post(ctx, "/v1/deals/"+roomID.String()+"/refund", chainID, map[string]any{
		"destination": destination,
		"amount":      amount,
		"chainId":     chainID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TxRef, nil
}

func (g *HTTPClient) post(ctx context.Context, path, chainID string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.keys != nil {
		keyID, secret, err := g.keys.KeyForChain(chainID)
		if err != nil {
			return err
		}
		if keyID != "" {
			req.Header.Set("X-Api-Key-Id", keyID)
			req.Header.Set("X-Api-Key", secret)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("gateway request failed")
		return fmt.Errorf("gateway %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway response %s: %w", path, err)
	}
	return nil
}
