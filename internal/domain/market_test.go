package domain

import (
	"testing"
	"time"
)

func TestIsoDate_JDay(t *testing.T) {
	tests := []struct {
		date IsoDate
		want JDay
	}{
		{20140302, 2456719},
		{20140402, 2456750},
		{19700101, 2440588},
		{20000229, 2451604},
	}
	for _, tt := range tests {
		if got := tt.date.JDay(); got != tt.want {
			t.Errorf("%s.JDay() = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestIsoDate_Valid(t *testing.T) {
	valid := []IsoDate{20140302, 20000229, 20241231}
	invalid := []IsoDate{20140230, 20141301, 20140000, 0, 2014032}
	for _, d := range valid {
		if !d.Valid() {
			t.Errorf("%s.Valid() = false", d)
		}
	}
	for _, d := range invalid {
		if d.Valid() {
			t.Errorf("%s.Valid() = true", d)
		}
	}
}

func TestMarketID_MatchesObservedIDs(t *testing.T) {
	tests := []struct {
		instrID int32
		date    IsoDate
		want    int64
	}{
		{1, 20140302, 82255},
		{1, 20140402, 82286},
		{2, 20140302, 147791},
		{4, 20140302, 278863},
	}
	for _, tt := range tests {
		if got := MarketID(tt.instrID, tt.date); got != tt.want {
			t.Errorf("MarketID(%d, %s) = %d, want %d", tt.instrID, tt.date, got, tt.want)
		}
	}
}

func TestMarketID_PacksJulianDay(t *testing.T) {
	// 0xabcdef: instrument 171, Julian day 2492719.
	jd := JDay(2492719)
	id := int64(171)<<16 | int64(jd-jdEpoch)
	if id != 0xabcdef {
		t.Fatalf("packed id = %#x, want 0xabcdef", id)
	}
}

func TestMarketState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to MarketState
		want     bool
	}{
		{MarketStateCreated, MarketStateTrading, true},
		{MarketStateCreated, MarketStateSuspended, false},
		{MarketStateTrading, MarketStateSuspended, true},
		{MarketStateSuspended, MarketStateTrading, true},
		{MarketStateTrading, MarketStateCreated, false},
		{MarketStateTrading, MarketStateClosed, true},
		{MarketStateCreated, MarketStateClosed, true},
		{MarketStateTrading, MarketStateTrading, true},
		{MarketStateClosed, MarketStateTrading, false},
		{MarketStateClosed, MarketStateClosed, false},
		{MarketStateTrading, MarketState(9), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseMarketState(t *testing.T) {
	for in, want := range map[string]MarketState{
		"1": MarketStateCreated, "trading": MarketStateTrading, "3": MarketStateSuspended, "closed": MarketStateClosed,
	} {
		got, ok := ParseMarketState(in)
		if !ok || got != want {
			t.Errorf("ParseMarketState(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseMarketState("open"); ok {
		t.Error("ParseMarketState(open) should fail")
	}
}

func TestBusinessDay_UTC(t *testing.T) {
	now := time.UnixMilli(1388534400000) // 2014-01-01T00:00:00Z
	if got, want := BusinessDay(now), IsoDate(20140101).JDay(); got != want {
		t.Errorf("BusinessDay = %d, want %d", got, want)
	}
}
