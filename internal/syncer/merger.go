package syncer

import "github.com/fernwallet/banksync/pkg/banking"

// MergeTransactions combines cached and freshly fetched transactions,
// deduplicating by identity key. Fetched data wins on collision since it
// reflects the latest aggregator state (e.g. a transaction moving from
// pending to posted). A zero-length fetch is a legitimate "no new activity"
// result and returns the cached list unchanged.
func MergeTransactions(cached, fetched []banking.BankTransaction) []banking.BankTransaction {
	byKey := make(map[string]banking.BankTransaction, len(cached)+len(fetched))
	order := make([]string, 0, len(cached)+len(fetched))

	for _, t := range cached {
		key := t.IdentityKey()
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = t
	}

	for _, t := range fetched {
		key := t.IdentityKey()
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = t
	}

	merged := make([]banking.BankTransaction, 0, len(byKey))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}

	banking.SortByDateDesc(merged)

	return merged
}
