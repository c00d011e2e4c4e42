package eventapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
)

// ProgressFunc receives byte-level progress of a single transfer.
type ProgressFunc func(loaded, total int64)

// UploadFile is one file queued for transfer. Open is called once per attempt
// and the returned reader must yield exactly Size bytes.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a file on disk for upload
func FileFromPath(path string) (UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadFile{}, fmt.Errorf("could not stat file: %w", err)
	}
	if info.IsDir() {
		return UploadFile{}, fmt.Errorf("%s is a directory", path)
	}
	return UploadFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path) //nolint:gosec // user-provided file path for upload
		},
	}, nil
}

// FileFromBytes describes an in-memory file for upload
func FileFromBytes(name string, data []byte) UploadFile {
	return UploadFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// progressReader reports how many bytes the transport has consumed.
type progressReader struct {
	r          io.Reader
	loaded     int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.loaded, p.total)
		}
	}
	return n, err
}

// uploadEnvelope builds the multipart bytes surrounding the file content so
// the body can be streamed with a known length.
func uploadEnvelope(eventID string, consent bool, fileName string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("event_id", eventID); err != nil {
		return nil, nil, "", fmt.Errorf("could not write form field: %w", err)
	}
	if err := writer.WriteField("consent", strconv.FormatBool(consent)); err != nil {
		return nil, nil, "", fmt.Errorf("could not write form field: %w", err)
	}
	if _, err := writer.CreateFormFile("images", fileName); err != nil {
		return nil, nil, "", fmt.Errorf("could not create form file: %w", err)
	}
	headLen := buf.Len()

	if err := writer.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("could not close writer: %w", err)
	}

	data := buf.Bytes()
	return data[:headLen], data[headLen:], writer.FormDataContentType(), nil
}

// UploadFile uploads a single file to an event and returns the processing job
// the server created for it. Cancelling ctx aborts the transfer and yields an
// error matching ErrUploadCancelled.
func (c *Client) UploadFile(ctx context.Context, eventID string, consent bool, file UploadFile, onProgress ProgressFunc) (*UploadResult, error) {
	if eventID == "" {
		return nil, errors.New("event ID is required")
	}
	if file.Open == nil {
		return nil, fmt.Errorf("file %s has no content", file.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, uploadContextError(ctx, file, err)
	}

	head, tail, contentType, err := uploadEnvelope(eventID, consent, file.Name)
	if err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer src.Close()

	content := &progressReader{r: src, total: file.Size, onProgress: onProgress}
	body := io.MultiReader(bytes.NewReader(head), content, bytes.NewReader(tail))
	length := int64(len(head)) + file.Size + int64(len(tail))

	result, err := doMultipartJSON[UploadResult](ctx, c, "upload", contentType, body, length)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, uploadContextError(ctx, file, err)
		}
		return nil, err
	}
	return result, nil
}

// uploadContextError separates a deliberate abort from a deadline, which is
// reported as an ordinary transport failure.
func uploadContextError(ctx context.Context, file UploadFile, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %s", ErrUploadCancelled, file.Name)
	}
	return fmt.Errorf("upload of %s interrupted: %w", file.Name, err)
}
