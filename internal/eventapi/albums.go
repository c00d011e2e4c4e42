package eventapi

import (
	"context"
	"fmt"
)

// GenerateAlbum starts album generation for an event. A 409 response
// (generation already running) is returned as an *APIError; see IsConflictError.
func (c *Client) GenerateAlbum(ctx context.Context, eventID string) (*AlbumGeneration, error) {
	return doPostJSON[AlbumGeneration](ctx, c, fmt.Sprintf("events/%s/albums/generate", pathID(eventID)), nil)
}

// ListAlbums retrieves all albums of an event, newest first
func (c *Client) ListAlbums(ctx context.Context, eventID string) ([]Album, error) {
	result, err := doGetJSON[AlbumList](ctx, c, fmt.Sprintf("events/%s/albums", pathID(eventID)))
	if err != nil {
		return nil, err
	}
	return result.Albums, nil
}

// GetAlbum retrieves an album with its moments and photos
func (c *Client) GetAlbum(ctx context.Context, eventID, albumID string) (*Album, error) {
	return doGetJSON[Album](ctx, c, fmt.Sprintf("events/%s/albums/%s", pathID(eventID), pathID(albumID)))
}

// DeleteAlbum deletes an album
func (c *Client) DeleteAlbum(ctx context.Context, eventID, albumID string) error {
	_, err := doDeleteJSON[messageResponse](ctx, c, fmt.Sprintf("events/%s/albums/%s", pathID(eventID), pathID(albumID)))
	return err
}
