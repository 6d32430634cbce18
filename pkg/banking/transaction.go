package banking

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the calendar-date layout used by the aggregator API.
const DateFormat = "2006-01-02"

type TransactionType string

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// BankTransaction is a single externally sourced transaction. Amounts follow
// the aggregator's sign convention: positive is an outflow, negative an
// inflow.
type BankTransaction struct {
	ID         string          `json:"id,omitempty"`
	AccountID  string          `json:"accountId"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	Pending    bool            `json:"pending,omitempty"`
	Categories []string        `json:"categories,omitempty"`
}

// IdentityKey is the dedup key: merchant name, exact signed amount and
// calendar date. Two fetches of the same underlying transaction map to the
// same key even when the aggregator hands out different IDs (e.g. a pending
// transaction posting).
func (t BankTransaction) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%s", t.Name, t.Amount.String(), t.Date)
}

func (t BankTransaction) Type() TransactionType {
	if t.Amount.IsNegative() {
		return Income
	}
	return Expense
}

// DateTime parses the transaction's calendar date.
func (t BankTransaction) DateTime() (time.Time, error) {
	d, err := time.Parse(DateFormat, t.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", err.Error())
	}
	return d, nil
}

// SortByDateDesc orders transactions newest first, with the identity key as
// a tiebreaker so the ordering is stable across runs.
func SortByDateDesc(transactions []BankTransaction) {
	sort.Slice(transactions, func(i, j int) bool {
		if transactions[i].Date != transactions[j].Date {
			return transactions[i].Date > transactions[j].Date
		}
		return transactions[i].IdentityKey() < transactions[j].IdentityKey()
	})
}

// LatestDate returns the newest calendar date in the list, or "" for an
// empty list. ISO dates compare correctly as strings.
func LatestDate(transactions []BankTransaction) string {
	latest := ""
	for _, t := range transactions {
		if t.Date > latest {
			latest = t.Date
		}
	}
	return latest
}

// Account is an aggregator-side bank account.
type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type,omitempty"`
	Mask    string          `json:"mask,omitempty"`
	Balance decimal.Decimal `json:"balance"`
	Closed  bool            `json:"closed,omitempty"`
}
