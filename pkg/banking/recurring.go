package banking

import "github.com/shopspring/decimal"

type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// RecurringSuggestion is a heuristically detected repeating payment or
// income pattern. It is a suggestion, not a confirmed scheduled transaction.
type RecurringSuggestion struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Frequency   Frequency       `json:"frequency"`
	Occurrences int             `json:"occurrences"`
	LastDate    string          `json:"lastDate"`
	IsIncome    bool            `json:"isIncome"`
}
