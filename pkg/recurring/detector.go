// Package recurring detects repeating payments and income in a transaction
// history. It is a fixed-amount heuristic: a recurring charge is assumed to
// repeat at the exact same amount, so amount-varying subscriptions are an
// accepted false negative.
package recurring

import (
	"fmt"
	"sort"
	"time"

	"github.com/fernwallet/banksync/pkg/banking"
)

const minOccurrences = 2

// DefaultCategory is used when the earliest transaction in a group carries
// no category tags.
const DefaultCategory = "Other"

type group struct {
	key          string
	transactions []banking.BankTransaction
}

// Detect groups transactions by (name, absolute amount), classifies each
// group's mean inter-occurrence interval into a frequency bucket and emits
// one suggestion per surviving group, most frequent occurrence count first.
// It never fails: transactions with unparseable dates are skipped and an
// empty input yields an empty result.
func Detect(transactions []banking.BankTransaction) []banking.RecurringSuggestion {
	groups := make(map[string]*group)
	order := []string{}

	for _, t := range transactions {
		if _, err := t.DateTime(); err != nil {
			continue
		}

		key := fmt.Sprintf("%s|%s", t.Name, t.Amount.Abs().String())
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.transactions = append(g.transactions, t)
	}

	suggestions := []banking.RecurringSuggestion{}

	for _, key := range order {
		g := groups[key]
		if len(g.transactions) < minOccurrences {
			continue
		}

		sort.Slice(g.transactions, func(i, j int) bool {
			return g.transactions[i].Date < g.transactions[j].Date
		})

		frequency, ok := classify(g.transactions)
		if !ok {
			continue
		}

		earliest := g.transactions[0]
		latest := g.transactions[len(g.transactions)-1]

		category := DefaultCategory
		if len(earliest.Categories) > 0 {
			category = earliest.Categories[0]
		}

		suggestions = append(suggestions, banking.RecurringSuggestion{
			Name:        earliest.Name,
			Amount:      earliest.Amount,
			Category:    category,
			Frequency:   frequency,
			Occurrences: len(g.transactions),
			LastDate:    latest.Date,
			IsIncome:    earliest.Amount.IsNegative(),
		})
	}

	// most confident first
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Occurrences != suggestions[j].Occurrences {
			return suggestions[i].Occurrences > suggestions[j].Occurrences
		}
		return suggestions[i].Name < suggestions[j].Name
	})

	return suggestions
}

// classify computes the mean consecutive interval in days for a date-sorted
// group and maps it to a frequency bucket.
func classify(transactions []banking.BankTransaction) (banking.Frequency, bool) {
	dates := make([]time.Time, 0, len(transactions))
	for _, t := range transactions {
		d, err := t.DateTime()
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}

	if len(dates) < minOccurrences {
		return "", false
	}

	totalDays := 0.0
	for i := 1; i < len(dates); i++ {
		totalDays += dates[i].Sub(dates[i-1]).Hours() / 24
	}
	meanDays := totalDays / float64(len(dates)-1)

	return classifyInterval(meanDays)
}

// classifyInterval maps a mean interval in days to a frequency bucket. All
// bucket bounds are inclusive.
func classifyInterval(days float64) (banking.Frequency, bool) {
	switch {
	case days >= 6 && days <= 8:
		return banking.Weekly, true
	case days >= 13 && days <= 15:
		return banking.Biweekly, true
	case days >= 25 && days <= 35:
		return banking.Monthly, true
	case days >= 85 && days <= 95:
		return banking.Quarterly, true
	case days >= 360 && days <= 370:
		return banking.Yearly, true
	}

	return "", false
}
