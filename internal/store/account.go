package store

import (
	"sync"
	"time"

	"github.com/efreitasn/venue/internal/domain"
)

// AccountStore is a thread-safe in-memory store for accounts, keyed by
// mnemonic. Accounts are provisioned elsewhere, so the venue creates them
// lazily the first time a mnemonic shows up.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	groups   map[string]string
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
		groups:   make(map[string]string),
	}
}

// AssignGroups sets the settlement group of the given accounts, including
// ones not seen yet. Orders placed before the change keep their group.
func (s *AccountStore) AssignGroups(groups map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for mnem, group := range groups {
		s.groups[mnem] = group
		if a, ok := s.accounts[mnem]; ok {
			a.Group = group
		}
	}
}

// GetOrCreate returns the account for mnem, creating it on first use. The
// second result is true when the account was created.
func (s *AccountStore) GetOrCreate(mnem string, now time.Time) (domain.Account, bool) {
	s.mu.RLock()
	a, ok := s.accounts[mnem]
	s.mu.RUnlock()
	if ok {
		return *a, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok = s.accounts[mnem]; ok {
		return *a, false
	}
	a = &domain.Account{Mnem: mnem, Display: mnem, Group: s.groups[mnem], Created: now}
	s.accounts[mnem] = a
	return *a, true
}

// Get retrieves an account by mnemonic.
func (s *AccountStore) Get(mnem string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[mnem]
	if !ok {
		return domain.Account{}, false
	}
	return *a, true
}
