package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/poller"
	"github.com/kozaktomas/eventlens/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <event-id> <path> [path...]",
	Short: "Upload photos to an event",
	Long: `Upload photos to an event, one file at a time.

Paths may be files or folders. By default only files directly inside a
folder are uploaded; use -r to search subdirectories. A failed file does
not stop the batch. Press Ctrl+C to cancel: the current transfer is
aborted and remaining files are skipped, while files already accepted
stay uploaded.

Uploading requires confirming that you have the right to share the photos
and that guests consented to face processing (--consent).

Example:
  eventlens upload 7f3c... --consent /path/to/photos
  eventlens upload 7f3c... --consent -r /path/to/photos
  eventlens upload 7f3c... --consent --wait img1.jpg img2.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolP("recursive", "r", false, "Search for photos recursively in subdirectories")
	uploadCmd.Flags().Bool("consent", false, "Confirm consent for uploading and face processing")
	uploadCmd.Flags().Bool("wait", false, "Wait for the server to finish processing the uploads")
}

// isImageFile checks if a file has an extension the service accepts
func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	supported := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
		".heic": true,
		".heif": true,
		".bmp":  true,
		".gif":  true,
		".tiff": true,
		".tif":  true,
	}
	return supported[ext]
}

// collectFiles expands folders into image files, keeping the argument order.
// Explicitly named files are taken as they are.
func collectFiles(paths []string, recursive bool) ([]eventapi.UploadFile, error) {
	var files []eventapi.UploadFile
	add := func(path string) error {
		file, err := eventapi.FileFromPath(path)
		if err != nil {
			return err
		}
		files = append(files, file)
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := add(path); err != nil {
				return nil, err
			}
			continue
		}

		if recursive {
			err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !isImageFile(d.Name()) {
					return nil
				}
				return add(p)
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", path, err)
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isImageFile(entry.Name()) {
				continue
			}
			if err := add(filepath.Join(path, entry.Name())); err != nil {
				return nil, err
			}
		}
	}
	return files, nil
}

// fileProgress draws one byte bar per file from batch progress snapshots.
type fileProgress struct {
	current int
	bar     *progressbar.ProgressBar
}

func (fp *fileProgress) update(p upload.Progress) {
	if fp.bar == nil || p.CurrentIndex != fp.current {
		if fp.bar != nil {
			_ = fp.bar.Finish()
		}
		fp.current = p.CurrentIndex
		desc := fmt.Sprintf("[%d/%d] %s", p.CurrentIndex+1, p.TotalFiles, p.CurrentFileName)
		fp.bar = newBytesBar(p.CurrentTotal, desc)
	}
	_ = fp.bar.Set64(p.CurrentLoaded)
}

func (fp *fileProgress) finish() {
	if fp.bar != nil {
		_ = fp.bar.Finish()
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	eventID := args[0]
	recursive := mustGetBool(cmd, "recursive")
	consent := mustGetBool(cmd, "consent")
	wait := mustGetBool(cmd, "wait")

	if !consent {
		return errors.New("uploading requires --consent")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := collectFiles(args[1:], recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No image files found in the specified paths.")
		return nil
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	event, err := client.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	fmt.Printf("Uploading %d file(s) to event: %s\n\n", len(files), event.Name)

	progress := &fileProgress{}
	batch, err := upload.NewBatch(client, eventID, upload.WithProgress(progress.update))
	if err != nil {
		return err
	}

	// Ctrl+C cancels the batch; Run itself gets a context that outlives the signal
	cancelOnSignal := context.AfterFunc(ctx, batch.Cancel)
	result, err := batch.Run(context.WithoutCancel(ctx), files, consent)
	cancelOnSignal()
	progress.finish()
	fmt.Println()

	var batchErr *upload.BatchError
	if errors.As(err, &batchErr) {
		printFailures(batchErr.Failures)
		return batchErr
	}
	if err != nil {
		return err
	}

	printFailures(result.Failures)
	fmt.Printf("\nUploaded:   %d file(s)\n", result.FilesCompleted)
	fmt.Printf("Accepted:   %d image(s)\n", result.ImagesAccepted)
	if result.DuplicatesSkipped > 0 {
		fmt.Printf("Duplicates: %d\n", result.DuplicatesSkipped)
	}
	if result.ImagesRejected > 0 {
		fmt.Printf("Rejected:   %d\n", result.ImagesRejected)
	}
	if result.FilesFailed > 0 {
		fmt.Printf("Failed:     %d file(s)\n", result.FilesFailed)
	}
	if result.Cancelled {
		fmt.Printf("Cancelled:  %d file(s) skipped\n", result.FilesSkipped)
		return nil
	}

	if wait && len(result.JobIDs) > 0 {
		return waitForJobs(ctx, client, cfg.Poll.Interval, result.JobIDs)
	}
	return nil
}

func printFailures(failures []upload.FileError) {
	for _, f := range failures {
		fmt.Printf("Failed: %s\n", f.Error())
	}
}

// waitForJobs polls every job until it reaches a terminal state.
func waitForJobs(ctx context.Context, client *eventapi.Client, interval time.Duration, jobIDs []string) error {
	fmt.Printf("\nProcessing %d upload(s)...\n", len(jobIDs))
	bar := newCountBar(len(jobIDs), "Processing", "jobs")

	pollers := make([]*poller.Poller[*eventapi.Job], 0, len(jobIDs))
	for _, jobID := range jobIDs {
		p, err := poller.NewJobPoller(client, interval)
		if err != nil {
			return err
		}
		p.Start(ctx, jobID)
		pollers = append(pollers, p)
	}

	var failed []string
	for i, p := range pollers {
		final, err := p.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for job %s: %w", jobIDs[i], err)
		}
		if final.Value != nil && final.Value.Status == eventapi.JobStatusFailed {
			failed = append(failed, fmt.Sprintf("job %s: %s", jobIDs[i], final.Value.ErrorMessage))
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	for _, msg := range failed {
		fmt.Printf("Warning: %s\n", msg)
	}
	fmt.Printf("\nDone! %d of %d job(s) processed successfully\n", len(jobIDs)-len(failed), len(jobIDs))
	return nil
}
