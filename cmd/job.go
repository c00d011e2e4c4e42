package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/poller"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect processing jobs",
}

var jobWatchCmd = &cobra.Command{
	Use:   "watch <job-id> [job-id...]",
	Short: "Poll processing jobs until they finish",
	Long: `Poll one or more processing jobs, printing each status change,
until every job has completed or failed.

Example:
  eventlens job watch 1b2c... 9e8d...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJobWatch,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobWatchCmd)
	jobWatchCmd.Flags().Duration("interval", 0, "Poll interval (default EVENTLENS_POLL_INTERVAL)")
}

func runJobWatch(cmd *cobra.Command, args []string) error {
	interval := mustGetDuration(cmd, "interval")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = cfg.Poll.Interval
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var (
		printMu sync.Mutex
		last    = make(map[string]eventapi.JobStatus)
	)
	onUpdate := func(u poller.Update[*eventapi.Job]) {
		printMu.Lock()
		defer printMu.Unlock()

		if u.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", u.ID, u.Err)
			return
		}
		job := u.Value
		if last[u.ID] == job.Status {
			return
		}
		last[u.ID] = job.Status
		fmt.Printf("%s  %-10s  %d/%d processed, %d failed, %d faces\n",
			u.ID, job.Status, job.ProcessedImages, job.TotalImages, job.FailedImages, job.TotalFacesFound)
		if job.ErrorMessage != "" {
			fmt.Printf("%s  error: %s\n", u.ID, job.ErrorMessage)
		}
	}

	pollers := make([]*poller.Poller[*eventapi.Job], 0, len(args))
	for _, jobID := range args {
		p, err := poller.NewJobPoller(client, interval, poller.WithOnUpdate(onUpdate))
		if err != nil {
			return err
		}
		p.Start(ctx, jobID)
		pollers = append(pollers, p)
	}

	failed := 0
	for i, p := range pollers {
		final, err := p.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for job %s: %w", args[i], err)
		}
		if final.Value.Status == eventapi.JobStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(args))
	}
	return nil
}
