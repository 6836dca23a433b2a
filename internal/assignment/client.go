package assignment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kroma-network/prover-assignment-server/internal/policy"
)

// Client requests assignments from a prover server on behalf of a proposer.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseUrl: strings.TrimSuffix(baseUrl, "/"), httpClient: httpClient}
}

// ApiError is a non-200 answer from the prover. It unwraps to the matching
// sentinel error when the reason is a known one.
type ApiError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *ApiError) Error() string { return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message) }

func (e *ApiError) Unwrap() error { return e.cause }

// Retryable reports whether the proposer may retry the same request later.
func (e *ApiError) Retryable() bool { return e.StatusCode == http.StatusServiceUnavailable }

var knownReasons = []error{
	policy.ErrInvalidTxListHash,
	policy.ErrUnsupportedFeeToken,
	policy.ErrProofFeeTooLow,
	policy.ErrExpiryTooLong,
	policy.ErrInvalidTier,
	ErrProverAtCapacity,
	ErrUpstreamUnavailable,
	ErrInternal,
}

func newApiError(statusCode int, body []byte) *ApiError {
	apiErr := &ApiError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	for _, reason := range knownReasons {
		if apiErr.Message == reason.Error() {
			apiErr.cause = reason
			break
		}
	}
	return apiErr
}

func (c *Client) RequestAssignment(ctx context.Context, request *policy.Request) (*AssignmentResponse, error) {
	return send[AssignmentResponse](ctx, c, http.MethodPost, "/assignment", request)
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return send[StatusResponse](ctx, c, http.MethodGet, "/status", nil)
}

func (c *Client) Complete(ctx context.Context, txListHash common.Hash) (int, error) {
	res, err := send[CompleteResponse](ctx, c, http.MethodPost, "/assignment/"+txListHash.Hex()+"/complete", nil)
	if err != nil {
		return 0, err
	}
	return res.Released, nil
}

func send[T any](ctx context.Context, c *Client, method string, path string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to json.Marshal: %w", err)
		}
		reader = bytes.NewReader(jsonBytes)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	responseBytes, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}
	if httpResponse.StatusCode != http.StatusOK {
		return nil, newApiError(httpResponse.StatusCode, responseBytes)
	}
	var result T
	if err := json.Unmarshal(responseBytes, &result); err != nil {
		return nil, errors.New("failed to json.Unmarshal response")
	}
	return &result, nil
}
