package contentbase

import (
	"context"
	"errors"
	"testing"
	"time"
)

type crawlState struct {
	LastID    int       `json:"lastId"`
	Cursor    string    `json:"cursor"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func TestScraperState_SaveLoad(t *testing.T) {
	ctx := context.Background()
	backend := NewFilesystemBackend(t.TempDir())

	state, err := LoadScraperState[crawlState](ctx, backend, "listing")
	if err != nil || state != nil {
		t.Fatalf("Load before Save = (%v, %v), want (nil, nil)", state, err)
	}

	saved := &crawlState{LastID: 42, Cursor: "abc", UpdatedAt: time.Unix(1_700_000_000, 0).UTC()}
	if err := SaveScraperState(ctx, backend, "listing", saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved.LastID = 43
	if err := SaveScraperState(ctx, backend, "listing", saved); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	state, err = LoadScraperState[crawlState](ctx, backend, "listing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *state != *saved {
		t.Errorf("Load = %+v, want %+v", state, saved)
	}

	if ok, _ := backend.Exists(ctx, "scrapers/listing/state"); !ok {
		t.Error("state not stored at scrapers/{type}/state")
	}

	// States of different scrapers are independent
	other, _ := LoadScraperState[crawlState](ctx, backend, "gallery")
	if other != nil {
		t.Errorf("unexpected state for gallery: %+v", other)
	}
}

func TestScraperState_Invalid(t *testing.T) {
	ctx := context.Background()
	backend := NewFilesystemBackend(t.TempDir())

	if err := SaveScraperState(ctx, backend, "", &crawlState{}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("empty type: expected ErrInvalidData, got %v", err)
	}

	backend.Put(ctx, "scrapers/broken/state", []byte("{not json"))
	if _, err := LoadScraperState[crawlState](ctx, backend, "broken"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("corrupt state: expected ErrInvalidData, got %v", err)
	}
}
