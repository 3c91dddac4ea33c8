// Package etherscan looks up contract metadata from an Etherscan-compatible API.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrLookupFailed is returned when the API answers but the creation block cannot be read.
var ErrLookupFailed = errors.New("contract creation lookup failed")

// Client queries one Etherscan-style endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a client for baseURL (for example https://api.etherscan.io).
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type creationResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type creation struct {
	ContractAddress string `json:"contractAddress"`
	BlockNumber     string `json:"blockNumber"`
}

// ContractCreationBlock returns the block in which contract was deployed.
func (c *Client) ContractCreationBlock(ctx context.Context, contract common.Address) (uint64, error) {
	endpoint := fmt.Sprintf("%s/api?module=contract&action=getcontractcreation&contractaddresses=%s&apikey=%s",
		c.baseURL, url.QueryEscape(strings.ToLower(contract.Hex())), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: http status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body creationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}
	if body.Status != "1" {
		return 0, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}

	var results []creation
	if err := json.Unmarshal(body.Result, &results); err != nil || len(results) == 0 || results[0].BlockNumber == "" {
		return 0, fmt.Errorf("%w: block number not found in response", ErrLookupFailed)
	}
	n, err := strconv.ParseUint(results[0].BlockNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse block number %q: %v", ErrLookupFailed, results[0].BlockNumber, err)
	}
	return n, nil
}
