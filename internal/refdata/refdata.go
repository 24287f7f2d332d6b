// Package refdata provides the static instrument reference data markets are
// opened against.
package refdata

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/efreitasn/venue/internal/domain"
)

// Defaults returns the built-in FX instrument set. Instrument ids are part of
// every market id, so they must never be renumbered.
func Defaults() []domain.Instrument {
	return []domain.Instrument{
		fx(1, "EUR", "USD"),
		fx(2, "GBP", "USD"),
		fx(3, "USD", "CHF"),
		fx(4, "USD", "JPY"),
		fx(5, "EUR", "GBP"),
		fx(6, "EUR", "CHF"),
		fx(7, "EUR", "JPY"),
		fx(8, "AUD", "USD"),
	}
}

func fx(id int32, base, term string) domain.Instrument {
	symbol := base + term
	return domain.Instrument{
		ID:        id,
		Symbol:    symbol,
		Display:   symbol,
		BaseAsset: base,
		TermCcy:   term,
		MinLots:   1,
		MaxLots:   10,
	}
}

type instrumentJSON struct {
	ID        int32  `json:"id"`
	Symbol    string `json:"symbol"`
	Display   string `json:"display"`
	BaseAsset string `json:"base_asset"`
	TermCcy   string `json:"term_ccy"`
	MinLots   int64  `json:"min_lots"`
	MaxLots   int64  `json:"max_lots"`
}

// Parse decodes a JSON array of instruments and validates it.
func Parse(data []byte) ([]domain.Instrument, error) {
	var raw []instrumentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}

	ids := make(map[int32]bool, len(raw))
	symbols := make(map[string]bool, len(raw))
	out := make([]domain.Instrument, 0, len(raw))
	for i, r := range raw {
		if r.ID <= 0 || r.ID > 0x7fff {
			return nil, fmt.Errorf("instrument %d: id %d out of range", i, r.ID)
		}
		if r.Symbol == "" {
			return nil, fmt.Errorf("instrument %d: symbol is required", i)
		}
		if ids[r.ID] || symbols[r.Symbol] {
			return nil, fmt.Errorf("instrument %s: duplicate id or symbol", r.Symbol)
		}
		if r.MinLots < 0 || (r.MaxLots > 0 && r.MaxLots < r.MinLots) {
			return nil, fmt.Errorf("instrument %s: invalid lot limits %d..%d", r.Symbol, r.MinLots, r.MaxLots)
		}
		ids[r.ID], symbols[r.Symbol] = true, true
		if r.Display == "" {
			r.Display = r.Symbol
		}
		out = append(out, domain.Instrument(r))
	}
	return out, nil
}

// Load reads instruments from path, or returns Defaults when path is empty.
func Load(path string) ([]domain.Instrument, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read refdata: %w", err)
	}
	return Parse(data)
}

// NewRegistry loads instruments from path into a registry.
func NewRegistry(path string) (*domain.InstrumentRegistry, error) {
	instrs, err := Load(path)
	if err != nil {
		return nil, err
	}
	return domain.NewInstrumentRegistry(instrs...), nil
}
