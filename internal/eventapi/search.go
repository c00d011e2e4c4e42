package eventapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
)

const defaultSelfieName = "selfie.jpg"

// searchForm collects multipart fields for the search endpoints.
type searchForm struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func newSearchForm() *searchForm {
	f := &searchForm{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

func (f *searchForm) field(name, value string) {
	if f.err != nil || value == "" {
		return
	}
	if err := f.writer.WriteField(name, value); err != nil {
		f.err = fmt.Errorf("could not write form field: %w", err)
	}
}

func (f *searchForm) threshold(value float64) {
	if value > 0 {
		f.field("threshold", strconv.FormatFloat(value, 'f', -1, 64))
	}
}

// exclusions are sent comma-joined and only when there is at least one.
func (f *searchForm) exclusions(ids []string) {
	if len(ids) > 0 {
		f.field("excluded_image_ids", strings.Join(ids, ","))
	}
}

func (f *searchForm) selfie(name string, data []byte) {
	if f.err != nil || len(data) == 0 {
		return
	}
	if name == "" {
		name = defaultSelfieName
	}
	part, err := f.writer.CreateFormFile("selfie", name)
	if err != nil {
		f.err = fmt.Errorf("could not create form file: %w", err)
		return
	}
	if _, err := part.Write(data); err != nil {
		f.err = fmt.Errorf("could not copy selfie data: %w", err)
	}
}

func (f *searchForm) close() error {
	if f.err != nil {
		return f.err
	}
	if err := f.writer.Close(); err != nil {
		return fmt.Errorf("could not close writer: %w", err)
	}
	return nil
}

// Search runs a face similarity search for a selfie within an event
func (c *Client) Search(ctx context.Context, input SearchRequest) (*SearchResponse, error) {
	if input.EventID == "" {
		return nil, errors.New("event ID is required")
	}
	if len(input.Selfie) == 0 {
		return nil, errors.New("selfie image is required")
	}

	form := newSearchForm()
	form.field("event_id", input.EventID)
	form.threshold(input.Threshold)
	form.exclusions(input.ExcludedImageIDs)
	form.selfie(input.SelfieName, input.Selfie)
	if err := form.close(); err != nil {
		return nil, err
	}

	return doMultipartJSON[SearchResponse](ctx, c, "search", form.writer.FormDataContentType(), &form.buf, int64(form.buf.Len()))
}

// SmartSearch runs a hybrid text and face search
func (c *Client) SmartSearch(ctx context.Context, input SmartSearchRequest) (*SmartSearchResponse, error) {
	if input.EventID == "" {
		return nil, errors.New("event ID is required")
	}
	if strings.TrimSpace(input.Query) == "" && len(input.Selfie) == 0 {
		return nil, errors.New("a query or a selfie is required")
	}

	form := newSearchForm()
	form.field("event_id", input.EventID)
	form.field("query", strings.TrimSpace(input.Query))
	form.threshold(input.Threshold)
	form.exclusions(input.ExcludedImageIDs)
	if input.MaxResults > 0 {
		form.field("max_results", strconv.Itoa(input.MaxResults))
	}
	form.selfie(input.SelfieName, input.Selfie)
	if err := form.close(); err != nil {
		return nil, err
	}

	return doMultipartJSON[SmartSearchResponse](ctx, c, "search/smart", form.writer.FormDataContentType(), &form.buf, int64(form.buf.Len()))
}

// SubmitFeedback records that an image does not show the person behind a selfie
func (c *Client) SubmitFeedback(ctx context.Context, input FeedbackRequest) (*FeedbackResponse, error) {
	if input.EventID == "" || input.ImageID == "" || input.SelfieHash == "" {
		return nil, errors.New("event ID, image ID and selfie hash are required")
	}
	return doPostJSON[FeedbackResponse](ctx, c, "search/feedback", input)
}
