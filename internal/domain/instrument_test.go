package domain

import (
	"errors"
	"sync"
	"testing"
)

func TestInstrumentRegistry_GetAndExists(t *testing.T) {
	r := NewInstrumentRegistry(Instrument{ID: 1, Symbol: "EURUSD", MinLots: 1, MaxLots: 10})

	if !r.Exists("EURUSD") {
		t.Error("Exists(EURUSD) = false")
	}
	in, err := r.Get("EURUSD")
	if err != nil || in.ID != 1 {
		t.Errorf("Get(EURUSD) = %+v, %v", in, err)
	}
	if _, err := r.Get("XAUUSD"); !errors.Is(err, ErrInstrumentNotFound) {
		t.Errorf("Get(XAUUSD) err = %v, want ErrInstrumentNotFound", err)
	}
}

func TestInstrumentRegistry_ListOrderedByID(t *testing.T) {
	r := NewInstrumentRegistry(
		Instrument{ID: 4, Symbol: "USDJPY"},
		Instrument{ID: 1, Symbol: "EURUSD"},
		Instrument{ID: 2, Symbol: "GBPUSD"},
	)
	list := r.List()
	if len(list) != 3 || list[0].Symbol != "EURUSD" || list[2].Symbol != "USDJPY" {
		t.Errorf("List() = %+v", list)
	}
}

func TestInstrumentRegistry_ConcurrentAccess(t *testing.T) {
	r := NewInstrumentRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(Instrument{ID: 1, Symbol: "EURUSD"})
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Exists("EURUSD")
		}()
	}
	wg.Wait()

	if !r.Exists("EURUSD") {
		t.Error("Exists(EURUSD) = false after concurrent registration")
	}
}
