package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fernwallet/banksync/pkg/banking"
)

// HTTPClient implements Client against the bank-link REST API. Errors come
// back as a JSON envelope: {"error_code": "...", "error_message": "..."}.
type HTTPClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

func NewHTTPClient(endpoint, accessToken string) *HTTPClient {
	return &HTTPClient{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  http.DefaultClient,
	}
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

type accountsResponse struct {
	Accounts []banking.Account `json:"accounts"`
}

type transactionsResponse struct {
	Transactions []banking.BankTransaction `json:"transactions"`
}

type errorResponse struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *HTTPClient) IsConnected(ctx context.Context) (bool, error) {
	var rs statusResponse
	err := c.get(ctx, "/item/status", nil, &rs)
	if err != nil {
		return false, err
	}

	return rs.Connected, nil
}

func (c *HTTPClient) ListAccounts(ctx context.Context) ([]banking.Account, error) {
	var rs accountsResponse
	err := c.get(ctx, "/accounts", nil, &rs)
	if err != nil {
		return nil, err
	}

	return rs.Accounts, nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, startDate, endDate string) ([]banking.BankTransaction, error) {
	query := map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
	}

	var rs transactionsResponse
	err := c.get(ctx, "/transactions", query, &rs)
	if err != nil {
		return nil, err
	}

	return rs.Transactions, nil
}

func (c *HTTPClient) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/item/disconnect", nil)
	if err != nil {
		return err
	}

	return c.do(req, nil)
}

func (c *HTTPClient) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+path, nil)
	if err != nil {
		return err
	}

	q := req.URL.Query()
	for k, v := range query {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	rs, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling aggregator: %w", err)
	}

	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return fmt.Errorf("error reading aggregator response: %w", err)
	}

	if rs.StatusCode >= 400 {
		apiErr := &Error{StatusCode: rs.StatusCode, Message: http.StatusText(rs.StatusCode)}

		var envelope errorResponse
		if json.Unmarshal(bodyBytes, &envelope) == nil && envelope.ErrorCode != "" {
			apiErr.Code = envelope.ErrorCode
			apiErr.Message = envelope.ErrorMessage
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(bodyBytes, out)
}
