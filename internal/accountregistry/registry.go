// Package accountregistry holds the static set of provisioned accounts.
package accountregistry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// DefaultAccounts are provisioned when no accounts are configured.
var DefaultAccounts = []domain.Account{
	{ID: 1, CreditLimit: 100000},
	{ID: 2, CreditLimit: 80000},
	{ID: 3, CreditLimit: 1000000},
	{ID: 4, CreditLimit: 10000000},
	{ID: 5, CreditLimit: 500000},
}

// Registry maps account ids to accounts. It is never mutated after New,
// so it is safe for concurrent use.
type Registry struct {
	accounts map[int32]domain.Account
}

// New builds a registry from the given accounts.
func New(accounts []domain.Account) (*Registry, error) {
	m := make(map[int32]domain.Account, len(accounts))

	for _, a := range accounts {
		if a.ID < 1 {
			return nil, fmt.Errorf("account id %d must be positive", a.ID)
		}

		if a.CreditLimit < 0 {
			return nil, fmt.Errorf("account %d credit limit must not be negative", a.ID)
		}

		if _, ok := m[a.ID]; ok {
			return nil, fmt.Errorf("account %d provisioned twice", a.ID)
		}

		m[a.ID] = a
	}

	return &Registry{accounts: m}, nil
}

// Parse builds a registry from a "id:limit,id:limit" list.
//
// An empty list yields DefaultAccounts.
func Parse(s string) (*Registry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return New(DefaultAccounts)
	}

	var accounts []domain.Account

	for _, pair := range strings.Split(s, ",") {
		idStr, limitStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("malformed account %q, want id:limit", pair)
		}

		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed account id %q: %w", idStr, err)
		}

		limit, err := strconv.ParseInt(strings.TrimSpace(limitStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed credit limit %q: %w", limitStr, err)
		}

		accounts = append(accounts, domain.Account{ID: int32(id), CreditLimit: limit})
	}

	return New(accounts)
}

// Lookup returns the account with the given id.
func (r *Registry) Lookup(id int32) (domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// All returns every account ordered by id.
func (r *Registry) All() []domain.Account {
	out := make([]domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
