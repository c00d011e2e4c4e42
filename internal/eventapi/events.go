package eventapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// pathID escapes an identifier for use as a single path segment.
func pathID(id string) string {
	return url.PathEscape(id)
}

// LookupEvent resolves a guest access code to an event. The server matches
// codes exactly, so the code is sent as typed (trimmed). When that finds
// nothing and the folded form differs, the folded form is tried once.
func (c *Client) LookupEvent(ctx context.Context, accessCode string) (*EventLookup, error) {
	code := strings.TrimSpace(accessCode)
	if code == "" {
		return nil, errors.New("access code is required")
	}

	found, err := c.lookupEvent(ctx, code)
	if err != nil && IsNotFoundError(err) {
		if folded := NormalizeAccessCode(code); folded != "" && folded != code {
			return c.lookupEvent(ctx, folded)
		}
	}
	return found, err
}

func (c *Client) lookupEvent(ctx context.Context, code string) (*EventLookup, error) {
	input := struct {
		AccessCode string `json:"access_code"`
	}{
		AccessCode: code,
	}
	return doPostJSON[EventLookup](ctx, c, "events/lookup", input)
}

// VerifyEvent checks an access code against a known event
func (c *Client) VerifyEvent(ctx context.Context, eventID, accessCode string) (*EventVerification, error) {
	input := struct {
		AccessCode string `json:"access_code"`
	}{
		AccessCode: strings.TrimSpace(accessCode),
	}
	return doPostJSON[EventVerification](ctx, c, fmt.Sprintf("events/%s/verify", pathID(eventID)), input)
}

// GetEvent retrieves a single event by ID
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	return doGetJSON[Event](ctx, c, fmt.Sprintf("events/%s", pathID(eventID)))
}

// GetEventStats retrieves aggregate counts for an event
func (c *Client) GetEventStats(ctx context.Context, eventID string) (*EventStats, error) {
	return doGetJSON[EventStats](ctx, c, fmt.Sprintf("events/%s/stats", pathID(eventID)))
}

// ListEvents retrieves all events, newest first
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	result, err := doGetJSON[[]Event](ctx, c, "events")
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// CreateEvent creates a new event
func (c *Client) CreateEvent(ctx context.Context, input CreateEventRequest) (*Event, error) {
	if input.Name == "" {
		return nil, errors.New("event name is required")
	}
	input.AccessCode = strings.TrimSpace(input.AccessCode)
	return doPostJSON[Event](ctx, c, "events", input)
}

// DeleteEvent deletes an event and everything uploaded to it
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := doDeleteJSON[messageResponse](ctx, c, fmt.Sprintf("events/%s", pathID(eventID)))
	return err
}

// ListImages retrieves one page of an event's images. Pages start at 1.
func (c *Client) ListImages(ctx context.Context, eventID string, page, perPage int) (*ImagePage, error) {
	if page < 1 {
		page = 1
	}
	endpoint := fmt.Sprintf("events/%s/images?page=%d", pathID(eventID), page)
	if perPage > 0 {
		endpoint += fmt.Sprintf("&per_page=%d", perPage)
	}
	return doGetJSON[ImagePage](ctx, c, endpoint)
}

// ListAllImages follows has_next until every image of the event is fetched
func (c *Client) ListAllImages(ctx context.Context, eventID string, perPage int) ([]Image, error) {
	var images []Image
	for page := 1; ; page++ {
		result, err := c.ListImages(ctx, eventID, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("could not list images page %d: %w", page, err)
		}
		images = append(images, result.Images...)
		if !result.HasNext || len(result.Images) == 0 {
			return images, nil
		}
	}
}

// Health retrieves the service health report
func (c *Client) Health(ctx context.Context) (*Health, error) {
	return doGetJSON[Health](ctx, c, "health")
}
