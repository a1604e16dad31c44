package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// APIClient handles HTTP requests to a node's read API
type APIClient struct {
	host   string
	client *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(host string) *APIClient {
	return &APIClient{
		host: host,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs a GET request and decodes the response envelope into result
func doRequest[T any](ctx context.Context, c *APIClient, endpoint string) (T, error) {
	var zero T

	url := fmt.Sprintf("%s%s", c.host, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope APIResponse[T]
	if err := decodeJSONResponse(resp, &envelope); err != nil {
		return zero, err
	}
	if envelope.Code != ErrorCode(nil) {
		return zero, fmt.Errorf("API error %s: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Result, nil
}

// decodeJSONResponse reads the response body and decodes JSON. Error
// envelopes are decoded as well so the caller can surface their code.
func decodeJSONResponse(resp *http.Response, result interface{}) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		bodyStr := string(bodyBytes)
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bodyStr)
		}
		return fmt.Errorf("failed to decode JSON response: %w (body: %s)", err, bodyStr)
	}

	return nil
}

// GetDomain fetches the signing domain orders must be signed in
func (c *APIClient) GetDomain(ctx context.Context) (*DomainResult, error) {
	result, err := doRequest[DomainResult](ctx, c, "/v1/domain")
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOrderStatus fetches the status of maker's order id
func (c *APIClient) GetOrderStatus(ctx context.Context, maker common.Address, id *big.Int) (Status, error) {
	result, err := doRequest[OrderStatusResult](ctx, c, fmt.Sprintf("/v1/orders/%s/%s", maker.Hex(), bigOrZero(id).String()))
	if err != nil {
		return 0, err
	}
	return ParseStatus(result.Status)
}

// GetAuthorization fetches the grant between approver and delegate
func (c *APIClient) GetAuthorization(ctx context.Context, approver, delegate common.Address) (*AuthorizationResult, error) {
	result, err := doRequest[AuthorizationResult](ctx, c, fmt.Sprintf("/v1/authorizations/%s/%s", approver.Hex(), delegate.Hex()))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalance fetches wallet's balance of token
func (c *APIClient) GetBalance(ctx context.Context, token, wallet common.Address) (*big.Int, error) {
	result, err := doRequest[BalanceResult](ctx, c, fmt.Sprintf("/v1/balances/%s/%s", token.Hex(), wallet.Hex()))
	if err != nil {
		return nil, err
	}
	return ParseParam(result.Balance)
}

// GetAllowance fetches how much of token the engine may move for owner
func (c *APIClient) GetAllowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	result, err := doRequest[AllowanceResult](ctx, c, fmt.Sprintf("/v1/allowances/%s/%s", token.Hex(), owner.Hex()))
	if err != nil {
		return nil, err
	}
	return ParseParam(result.Allowance)
}
