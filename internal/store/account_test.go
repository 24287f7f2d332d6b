package store

import (
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/venue/internal/domain"
)

func TestAccountStore_GetOrCreate(t *testing.T) {
	s := NewAccountStore()
	now := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

	a, created := s.GetOrCreate("MARAYL", now)
	if !created || a.Mnem != "MARAYL" || !a.Created.Equal(now) {
		t.Fatalf("first GetOrCreate = %+v, %v", a, created)
	}
	if _, created := s.GetOrCreate("MARAYL", now.Add(time.Hour)); created {
		t.Error("second GetOrCreate created again")
	}
	if _, ok := s.Get("GOSAYL"); ok {
		t.Error("Get(GOSAYL) found an unknown account")
	}
}

func TestAccount_SettlementGroup(t *testing.T) {
	if got := (&domain.Account{Mnem: "MARAYL", Group: "FXDESK"}).SettlementGroup(); got != "FXDESK" {
		t.Errorf("SettlementGroup() = %q, want FXDESK", got)
	}
	if got := (&domain.Account{Mnem: "MARAYL"}).SettlementGroup(); got != "MARAYL" {
		t.Errorf("SettlementGroup() = %q, want the account itself", got)
	}
}

func TestAccountStore_AssignGroups(t *testing.T) {
	s := NewAccountStore()
	now := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	s.GetOrCreate("MARAYL", now)

	s.AssignGroups(map[string]string{"MARAYL": "DESK1", "GOSAYL": "DESK1"})

	if a, _ := s.Get("MARAYL"); a.SettlementGroup() != "DESK1" {
		t.Errorf("existing account group = %q, want DESK1", a.SettlementGroup())
	}
	if a, _ := s.GetOrCreate("GOSAYL", now); a.SettlementGroup() != "DESK1" {
		t.Errorf("new account group = %q, want DESK1", a.SettlementGroup())
	}
	if a, _ := s.GetOrCreate("EDIAYL", now); a.SettlementGroup() != "EDIAYL" {
		t.Errorf("unassigned account group = %q, want itself", a.SettlementGroup())
	}
}

func TestAccountStore_ConcurrentAccess(t *testing.T) {
	s := NewAccountStore()
	var wg sync.WaitGroup
	created := make(chan bool, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c := s.GetOrCreate("MARAYL", time.Now())
			created <- c
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	if n != 1 {
		t.Errorf("account created %d times, want 1", n)
	}
}
