package domain

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIdempotencyState(t *testing.T) {
	tests := []struct {
		state   IdempotencyState
		valid   bool
		settled bool
	}{
		{state: IdempotencyInFlight, valid: true},
		{state: IdempotencyCompleted, valid: true, settled: true},
		{state: IdempotencyRejected, valid: true, settled: true},
		{state: IdempotencyState("processing")},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.state.Settled(); got != tt.settled {
				t.Errorf("Settled() = %v, want %v", got, tt.settled)
			}
		})
	}
}

func TestReplayableResponseState(t *testing.T) {
	tests := []struct {
		status int
		want   IdempotencyState
	}{
		{status: http.StatusCreated, want: IdempotencyCompleted},
		{status: http.StatusOK, want: IdempotencyCompleted},
		{status: http.StatusBadRequest, want: IdempotencyRejected},
		{status: http.StatusConflict, want: IdempotencyRejected},
	}

	for _, tt := range tests {
		if got := (ReplayableResponse{StatusCode: tt.status}).State(); got != tt.want {
			t.Errorf("status %d: State() = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestReplayableResponseClone(t *testing.T) {
	body := []byte(`{"id":"order-1"}`)
	clone := ReplayableResponse{StatusCode: http.StatusCreated, Body: body}.Clone()
	body[2] = 'X'

	if string(clone.Body) != `{"id":"order-1"}` {
		t.Fatalf("clone shares buffer with source: %s", clone.Body)
	}
}

func TestIdempotencyClaimNormalize(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	claim, err := IdempotencyClaim{Key: "  key-1 ", RequestHash: " hash "}.Normalize(now, time.Hour)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if claim.Key != "key-1" || claim.RequestHash != "hash" {
		t.Fatalf("fields not trimmed: %+v", claim)
	}
	if !claim.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %s", claim.ExpiresAt)
	}

	if _, err := (IdempotencyClaim{Key: " ", RequestHash: "h"}).Normalize(now, time.Hour); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := (IdempotencyClaim{Key: "k"}).Normalize(now, time.Hour); !errors.Is(err, ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRecordConflictAndExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := NewIdempotencyRecord(IdempotencyClaim{
		Key:         "key-1",
		RequestHash: "hash",
		Scope:       IdempotencyScope{UserID: "user-1", Method: http.MethodPost, Route: "/api/v1/orders"},
		ExpiresAt:   now.Add(time.Minute),
	}, now)

	if record.State != IdempotencyInFlight || record.Scope.UserID != "user-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !errors.Is(record.Conflict("hash"), ErrIdempotencyKeyAlreadyExists) {
		t.Fatal("same hash must report an existing key")
	}
	if !errors.Is(record.Conflict("other"), ErrIdempotencyHashMismatch) {
		t.Fatal("different hash must report a mismatch")
	}
	if record.Expired(now) || !record.Expired(now.Add(time.Minute)) {
		t.Fatal("record expires exactly at ExpiresAt")
	}
}
