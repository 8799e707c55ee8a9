// One-shot session runner: starts a design session workflow against a
// board file and waits for the result.
//
// Usage:
//
//	run -board power.kicad_pcb -goal "move C3 away from U1"
//	run -board power.kicad_pcb -goal "..." -constraints rules.yaml \
//	    -datasheets U1.txt,U2.txt -provider anthropic -attempts 5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/envconfig"

	"github.com/fleaxiao/PCB-MCP/internal/models"
	wf "github.com/fleaxiao/PCB-MCP/internal/workflow"
)

func main() {
	boardPath := flag.String("board", "", "Board file to edit (required)")
	goal := flag.String("goal", "", "Design goal for the session (required)")
	constraintsPath := flag.String("constraints", "", "YAML constraint config")
	datasheets := flag.String("datasheets", "", "Comma-separated datasheet files")
	provider := flag.String("provider", "", "Planner provider: anthropic or openai")
	model := flag.String("model", "", "Planner model name")
	attempts := flag.Int("attempts", 0, "Max plan attempts (0 = default)")
	toolRetries := flag.Int("tool-retries", 0, "Attempts per tool invocation (0 = default)")
	threshold := flag.String("threshold", "", "Blocking severity threshold (advisory|warning|error|critical)")
	taskQueue := flag.String("task-queue", "pcb-design", "Temporal task queue")
	flag.Parse()

	if *boardPath == "" || *goal == "" {
		flag.Usage()
		os.Exit(2)
	}

	abs, err := filepath.Abs(*boardPath)
	if err != nil {
		fatal("resolve board path: %v", err)
	}

	opts, err := envconfig.LoadDefaultClientOptions()
	if err != nil {
		fatal("load Temporal client options: %v", err)
	}
	c, err := client.Dial(opts)
	if err != nil {
		fatal("connect to Temporal: %v", err)
	}
	defer c.Close()

	input := models.SessionInput{
		BoardPath:       abs,
		Goal:            *goal,
		ConstraintsPath: *constraintsPath,
		Config: models.SessionConfig{
			Provider:          *provider,
			Model:             *model,
			MaxAttempts:       *attempts,
			ToolRetryLimit:    *toolRetries,
			SeverityThreshold: *threshold,
		},
	}
	if *datasheets != "" {
		for _, p := range strings.Split(*datasheets, ",") {
			input.DatasheetPaths = append(input.DatasheetPaths, strings.TrimSpace(p))
		}
	}

	ctx := context.Background()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("pcb-%s", uuid.New().String()[:8]),
		TaskQueue: *taskQueue,
	}, wf.DesignSession, input)
	if err != nil {
		fatal("start session: %v", err)
	}
	fmt.Printf("session %s started\n", run.GetID())

	var result models.SessionResult
	if err := run.Get(ctx, &result); err != nil {
		fatal("session failed: %v", err)
	}

	fmt.Printf("outcome: %s after %d attempt(s)\n", result.Outcome, result.Attempts)
	switch result.Outcome {
	case models.OutcomeCommitted:
		for _, line := range result.Diff {
			fmt.Printf("  %s\n", line)
		}
	case models.OutcomeAborted:
		fmt.Printf("  reason: %s\n", result.AbortReason)
		for _, v := range result.Violations {
			fmt.Printf("  [%s] %s: %s\n", v.Severity, v.ConstraintID, v.Message)
		}
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
