// Package aggregator talks to the external bank-data aggregation service.
// Two backends are provided: a generic HTTP bank-link API and a YNAB budget
// treated as a read-only bank feed.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fernwallet/banksync/pkg/banking"
)

// Client is the boundary to the remote aggregator. Dates are calendar-date
// strings in banking.DateFormat, not timestamps.
type Client interface {
	IsConnected(ctx context.Context) (bool, error)
	ListAccounts(ctx context.Context) ([]banking.Account, error)
	ListTransactions(ctx context.Context, startDate, endDate string) ([]banking.BankTransaction, error)
	Disconnect(ctx context.Context) error
}

// Error codes that mean the durable access credential is no longer usable
// and the user has to re-link their bank.
const (
	CodeItemLoginRequired  = "ITEM_LOGIN_REQUIRED"
	CodeInvalidAccessToken = "INVALID_ACCESS_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

// Error is a structured aggregator API error.
type Error struct {
	Code       string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("aggregator error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("aggregator error (status %d): %s", e.StatusCode, e.Message)
}

// IsCredentialError reports whether err signals an expired or invalidated
// access credential, recoverable only by the user re-linking.
func IsCredentialError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case CodeItemLoginRequired, CodeInvalidAccessToken, CodeInvalidCredentials:
		return true
	}

	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
