// Worker hosting the design session workflow and its activities.
//
// Temporal connection settings come from the standard environment
// variables (TEMPORAL_ADDRESS, TEMPORAL_NAMESPACE, ...); planner API keys
// from ANTHROPIC_API_KEY / OPENAI_API_KEY.
//
// Usage:
//
//	worker                              Run with defaults
//	worker -task-queue pcb-design      Use a specific task queue
//	worker -archive sessions.db        Persist session outcomes to sqlite
package main

import (
	"flag"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/envconfig"
	"go.temporal.io/sdk/worker"

	"github.com/fleaxiao/PCB-MCP/internal/activities"
	"github.com/fleaxiao/PCB-MCP/internal/llm"
	"github.com/fleaxiao/PCB-MCP/internal/models"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
	"github.com/fleaxiao/PCB-MCP/internal/tools/handlers"
	wf "github.com/fleaxiao/PCB-MCP/internal/workflow"
)

const defaultTaskQueue = "pcb-design"

func main() {
	taskQueue := flag.String("task-queue", defaultTaskQueue, "Temporal task queue")
	archivePath := flag.String("archive", "", "Path to the sqlite session archive (empty disables archiving)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts, err := envconfig.LoadDefaultClientOptions()
	if err != nil {
		logger.Error("failed to load Temporal client options", "error", err)
		os.Exit(1)
	}
	c, err := client.Dial(opts)
	if err != nil {
		logger.Error("failed to connect to Temporal", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	var archive *session.Archive
	if *archivePath != "" {
		archive, err = session.OpenArchive(*archivePath)
		if err != nil {
			logger.Error("failed to open session archive", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
	}

	store := session.NewStore()
	registry := tools.NewRegistry()
	handlers.RegisterAll(registry, store)
	gateway := tools.NewGateway(registry, models.DefaultToolRetryLimit)
	acts := activities.NewSessionActivities(store, llm.NewMultiProviderClient(), gateway, archive)

	w := worker.New(c, *taskQueue, worker.Options{})
	w.RegisterWorkflow(wf.DesignSession)
	w.RegisterActivity(acts)

	logger.Info("worker starting", "task_queue", *taskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
