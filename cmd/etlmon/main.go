package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/activity"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/client"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/export"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/push"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/watch"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "etlmon",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	submit := flag.String("submit", "", "Submit a job for the given script id, then watch it")
	jobType := flag.String("type", "", "Job type for -submit (preview, single-script, combined-scripts)")
	rowLimit := flag.Int64("rows", 0, "Optional row limit for -submit / -preview")
	cancelID := flag.String("cancel", "", "Request cancellation of the given job id, then exit")
	previewIDs := flag.String("preview", "", "Comma-separated script ids to preview, then exit")
	logID := flag.String("log", "", "Print the full log of the given job id, then exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	api := client.New(&cfg.API)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		appLogger.Info("Shutting down")
		cancel()
	}()

	var limit *int64
	if *rowLimit > 0 {
		limit = rowLimit
	}

	// One-shot operations first; each of these exits without watching.
	switch {
	case *previewIDs != "":
		runPreview(ctx, api, appLogger, *previewIDs, limit)
		return
	case *cancelID != "":
		if err := api.CancelJob(ctx, *cancelID); err != nil {
			appLogger.WithError(err).Fatal("Cancel request failed")
		}
		appLogger.WithField(logger.FieldJobID, *cancelID).Info("Cancellation requested")
		return
	case *logID != "":
		text, err := api.JobLog(ctx, *logID)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to fetch job log")
		}
		fmt.Print(text)
		return
	}

	if *submit != "" {
		job, err := api.CreateJob(ctx, client.CreateJobRequest{
			ScriptID: *submit,
			JobType:  domain.JobKind(*jobType),
			RowLimit: limit,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to submit job")
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldJobID:    job.ID,
			logger.FieldScriptID: job.ScriptID,
		}).Info("Job submitted")
	}

	watchJobs(ctx, cfg, api, appLogger)
}

// watchJobs runs the reconciler until interrupted, streaming the activity
// buffer to stdout and printing a periodic progress line.
func watchJobs(ctx context.Context, cfg *config.Config, api *client.Client, appLogger *logger.Logger) {
	acts := activity.NewLog(cfg.Watch.BufferSize)
	acts.SetNotifyFunc(func(item domain.ActivityItem) {
		fmt.Printf("%s  %-10s %s\n", item.Timestamp.Format("15:04:05"), item.Type, item.Message)
	})

	watcher := watch.New(api, nil, acts, &cfg.Watch, appLogger)
	mgr := push.NewManager(&cfg.Socket, watcher.EventSink(), appLogger)
	watcher.SetAttacher(mgr)

	archiver, err := export.NewArchiver(&cfg.Export)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize log archiver")
	}
	if archiver != nil {
		if err := archiver.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
	}

	watcher.SetInvalidateFunc(func() {
		if archiver == nil {
			return
		}
		snap := watcher.Snapshot()
		if snap == nil {
			return
		}
		go archiveLog(ctx, api, archiver, appLogger, snap.ID)
	})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printStatus(watcher)
			}
		}
	}()

	watcher.Run(ctx)
}

func printStatus(watcher *watch.Watcher) {
	snap := watcher.Snapshot()
	switch {
	case watcher.Unknown():
		fmt.Println("-- job state unknown (polling failing)")
	case snap == nil:
		fmt.Println("-- no jobs")
	case snap.Status == domain.JobStatusRunning:
		total := int64(0)
		if snap.TotalRows != nil {
			total = *snap.TotalRows
		}
		fmt.Printf("-- running %s  row %d/%d  batch %d/%d  elapsed %s\n",
			snap.ID, snap.CurrentRow, total, snap.CurrentBatch, snap.TotalBatches,
			watch.FormatElapsed(watcher.ElapsedSeconds()))
	default:
		fmt.Printf("-- %s %s\n", snap.ID, snap.Status)
	}
}

func archiveLog(ctx context.Context, api *client.Client, archiver *export.Archiver, appLogger *logger.Logger, jobID string) {
	if done, err := archiver.Exists(ctx, jobID); err != nil || done {
		return
	}
	text, err := api.JobLog(ctx, jobID)
	if err != nil {
		appLogger.WithError(err).WithField(logger.FieldJobID, jobID).Warn("Failed to fetch log for archival")
		return
	}
	if err := archiver.ArchiveLog(ctx, jobID, text); err != nil {
		appLogger.WithError(err).WithField(logger.FieldJobID, jobID).Warn("Failed to archive job log")
		return
	}
	appLogger.WithField(logger.FieldJobID, jobID).Info("Job log archived")
}

func runPreview(ctx context.Context, api *client.Client, appLogger *logger.Logger, ids string, limit *int64) {
	scriptIDs := strings.Split(ids, ",")
	for i := range scriptIDs {
		scriptIDs[i] = strings.TrimSpace(scriptIDs[i])
	}

	result, err := api.Preview(ctx, client.PreviewRequest{ScriptIDs: scriptIDs, RowLimit: limit})
	if err != nil {
		appLogger.WithError(err).Fatal("Preview failed")
	}

	fmt.Printf("total rows:        %d\n", result.TotalRows)
	fmt.Printf("already processed: %d\n", result.AlreadyProcessed)
	fmt.Printf("new to process:    %d\n", result.NewToProcess)
	for _, row := range result.Rows {
		fmt.Printf("  %d  %s %s  %s\n", row.RowNumber, row.FirstName, row.LastName, row.Status)
	}
}
