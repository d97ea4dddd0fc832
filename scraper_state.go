package contentbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

func scraperStateKey(scraperType string) string {
	return "scrapers/" + scraperType + "/state"
}

// SaveScraperState persists the resume state of a scraper as JSON at
// scrapers/{type}/state, replacing what was there.
func SaveScraperState[T any](ctx context.Context, backend Backend, scraperType string, state *T) error {
	if scraperType == "" {
		return WithContext(ErrInvalidData, map[string]interface{}{"reason": "scraper type is required"})
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode %s scraper state: %w", scraperType, err)
	}
	return backend.PutStream(ctx, scraperStateKey(scraperType), bytes.NewReader(data), int64(len(data)))
}

// LoadScraperState reads the state saved by SaveScraperState. A scraper that
// never saved state gets nil.
func LoadScraperState[T any](ctx context.Context, backend Backend, scraperType string) (*T, error) {
	r, err := backend.GetStream(ctx, scraperStateKey(scraperType))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var state T
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"key":   scraperStateKey(scraperType),
			"error": err.Error(),
		})
	}
	return &state, nil
}
