package domain

import "time"

// Account is a trading entity. A group is an account used as the
// settlement entity for the trades of its members.
type Account struct {
	Mnem    string
	Display string
	Email   string
	Group   string // settlement group; the account itself when empty
	Created time.Time
}

// SettlementGroup returns the group trades are attributed to.
func (a *Account) SettlementGroup() string {
	if a.Group == "" {
		return a.Mnem
	}
	return a.Group
}
