package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigEntryValidate(t *testing.T) {
	cases := []struct {
		name    string
		entry   ConfigEntry
		wantErr bool
	}{
		{name: "number ok", entry: ConfigEntry{Name: ConfigShippingFee, Value: "5.50", DataType: ConfigTypeNumber}},
		{name: "boolean ok", entry: ConfigEntry{Name: "Maintenance", Value: "true", DataType: ConfigTypeBoolean}},
		{name: "string ok", entry: ConfigEntry{Name: "Banner", Value: "hello", DataType: ConfigTypeString}},
		{name: "empty name", entry: ConfigEntry{Value: "1", DataType: ConfigTypeNumber}, wantErr: true},
		{name: "long name", entry: ConfigEntry{Name: strings.Repeat("x", 51), Value: "1", DataType: ConfigTypeNumber}, wantErr: true},
		{name: "bad type", entry: ConfigEntry{Name: "X", Value: "1", DataType: "Mixed"}, wantErr: true},
		{name: "bad number", entry: ConfigEntry{Name: "X", Value: "five", DataType: ConfigTypeNumber}, wantErr: true},
		{name: "bad boolean", entry: ConfigEntry{Name: "X", Value: "sometimes", DataType: ConfigTypeBoolean}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigEntryDecimal(t *testing.T) {
	entry := ConfigEntry{Name: ConfigMinFreeShippingAmount, Value: " 50 ", DataType: ConfigTypeNumber}
	value, err := entry.Decimal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.String() != "50" {
		t.Fatalf("unexpected value %s", value)
	}

	entry.DataType = ConfigTypeString
	if _, err := entry.Decimal(); err == nil {
		t.Fatal("expected error for non-number config")
	}
}

func TestFunnelCountsAdd(t *testing.T) {
	var funnel FunnelCounts
	counts := map[ProcessStatus]int{
		ProcessStatusPending:    1,
		ProcessStatusProcessing: 2,
		ProcessStatusShipped:    3,
		ProcessStatusDelivered:  4,
		ProcessStatusCompleted:  5,
		ProcessStatusCanceled:   6,
		ProcessStatusReturned:   7,
		ProcessStatus("legacy"): 8,
	}
	for status, n := range counts {
		funnel.Add(status, n)
	}

	if funnel.Uncompleted != 10 || funnel.Completed != 5 || funnel.Failed != 21 {
		t.Fatalf("unexpected funnel: %+v", funnel)
	}
	if funnel.Total() != 36 {
		t.Fatalf("funnel must count every order once, got %d", funnel.Total())
	}
}

func TestStatsRangeContainsBounds(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
	r := StatsRange{From: from, To: to}

	if !r.Contains(from) || !r.Contains(to) {
		t.Fatal("range bounds must be inclusive")
	}
	if r.Contains(to.Add(time.Second)) {
		t.Fatal("moment after range must be excluded")
	}
}

func TestOrderFilterNormalize(t *testing.T) {
	f := OrderFilter{Limit: 1000, Sort: "name", Search: "  alice "}.Normalize()
	if f.Page != 1 || f.Limit != maxOrderPageLimit || f.Sort != OrderSortCreatedDesc || f.Search != "alice" {
		t.Fatalf("unexpected normalized filter: %+v", f)
	}
	f.Page = 3
	if f.Offset() != 2*maxOrderPageLimit {
		t.Fatalf("unexpected offset %d", f.Offset())
	}
}

func TestCartLineValidate(t *testing.T) {
	if err := (CartLine{ProductID: "p", Color: "red", Amount: 1}).Validate(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := (CartLine{ProductID: "p", Color: "red", Amount: 0}).Validate(2)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "cartItems[2].amount" {
		t.Fatalf("expected amount validation error, got %v", err)
	}
	if err := (CartLine{Color: "red", Amount: 1}).Validate(0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing product, got %v", err)
	}
}
