package aggregator

import (
	"context"
	"fmt"

	"github.com/davidsteinsland/ynab-go/ynab"
	"github.com/shopspring/decimal"

	"github.com/fernwallet/banksync/pkg/banking"
)

// YNAB stores amounts in milliunits, outflows negative. The engine's
// convention is the opposite sign with unit amounts.
const milliunitExponent = -3

// YNABClient exposes a YNAB budget as a read-only bank feed. The underlying
// SDK predates context support, so the context only gates between calls.
type YNABClient struct {
	client     *ynab.Client
	budgetID   string
	budgetName string
}

func NewYNABClient(accessToken, budgetID, budgetName string) *YNABClient {
	return &YNABClient{
		client:     ynab.NewDefaultClient(accessToken),
		budgetID:   budgetID,
		budgetName: budgetName,
	}
}

func (c *YNABClient) IsConnected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := c.client.BudgetService.List()
	if err != nil {
		return false, err
	}

	return true, nil
}

func (c *YNABClient) ListAccounts(ctx context.Context) ([]banking.Account, error) {
	budgetID, err := c.resolveBudgetID(ctx)
	if err != nil {
		return nil, err
	}

	budget, err := c.client.BudgetService.Get(budgetID)
	if err != nil {
		return nil, fmt.Errorf("error getting budget: %s", err.Error())
	}

	accounts := make([]banking.Account, 0, len(budget.Accounts))
	for _, account := range budget.Accounts {
		accounts = append(accounts, banking.Account{
			ID:      account.Id,
			Name:    account.Name,
			Type:    account.Type,
			Balance: decimal.New(int64(account.Balance), milliunitExponent),
			Closed:  account.Closed,
		})
	}

	return accounts, nil
}

func (c *YNABClient) ListTransactions(ctx context.Context, startDate, endDate string) ([]banking.BankTransaction, error) {
	budgetID, err := c.resolveBudgetID(ctx)
	if err != nil {
		return nil, err
	}

	ynabTransactions, err := c.client.TransactionsService.List(budgetID)
	if err != nil {
		return nil, fmt.Errorf("error getting transactions: %s", err.Error())
	}

	transactions := make([]banking.BankTransaction, 0, len(ynabTransactions))

	for _, transaction := range ynabTransactions {
		// the list endpoint returns full history; trim to the window
		if transaction.Date < startDate || transaction.Date > endDate {
			continue
		}

		categories := []string{}
		if transaction.CategoryName != "" {
			categories = append(categories, transaction.CategoryName)
		}

		transactions = append(transactions, banking.BankTransaction{
			ID:         transaction.Id,
			AccountID:  transaction.AccountName,
			Name:       transaction.PayeeName,
			Amount:     decimal.New(-int64(transaction.Amount), milliunitExponent),
			Date:       transaction.Date,
			Categories: categories,
		})
	}

	return transactions, nil
}

// Disconnect is a no-op: YNAB personal access tokens can only be revoked
// from the YNAB account page, not through the API.
func (c *YNABClient) Disconnect(ctx context.Context) error {
	return nil
}

func (c *YNABClient) resolveBudgetID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.budgetID != "" {
		return c.budgetID, nil
	}

	budgets, err := c.client.BudgetService.List()
	if err != nil {
		return "", fmt.Errorf("error listing budgets: %s", err.Error())
	}

	for _, b := range budgets {
		if b.Name == c.budgetName {
			c.budgetID = b.Id
			return c.budgetID, nil
		}
	}

	return "", fmt.Errorf("Unable to find ID for budget: %s", c.budgetName)
}
