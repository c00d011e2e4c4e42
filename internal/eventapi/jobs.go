package eventapi

import (
	"context"
	"fmt"
)

// GetJob retrieves the status of a processing job
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return doGetJSON[Job](ctx, c, fmt.Sprintf("jobs/%s", pathID(jobID)))
}
