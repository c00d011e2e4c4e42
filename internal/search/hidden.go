package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/eventlens/internal/store"
)

const hiddenKeyPrefix = "eventlens:hidden:"

// HiddenKey is the store key of an event's exclusion set.
func HiddenKey(eventID string) string {
	return hiddenKeyPrefix + eventID
}

// LoadHiddenIDs reads an event's exclusion set without opening a session.
func LoadHiddenIDs(ctx context.Context, st store.Store, eventID string) ([]string, error) {
	return loadHidden(ctx, st, eventID)
}

func loadHidden(ctx context.Context, st store.Store, eventID string) ([]string, error) {
	data, err := st.Get(ctx, HiddenKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("could not load hidden images: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("could not decode hidden images for event %s: %w", eventID, err)
	}
	return mergeIDs(ids), nil
}

func saveHidden(ctx context.Context, st store.Store, eventID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("could not encode hidden images: %w", err)
	}
	if err := st.Set(ctx, HiddenKey(eventID), data); err != nil {
		return fmt.Errorf("could not save hidden images: %w", err)
	}
	return nil
}
