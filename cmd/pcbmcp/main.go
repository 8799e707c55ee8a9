// MCP stdio server exposing the board tools for a single board file.
//
// The server checks the board out once at startup and serves the same
// tool surface the design session workflow uses, plus explicit
// save_board / discard_changes tools since there is no workflow deciding
// when to commit.
//
// Usage:
//
//	pcbmcp -board power.kicad_pcb
//	pcbmcp -board power.kicad_pcb -constraints rules.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fleaxiao/PCB-MCP/internal/models"
	"github.com/fleaxiao/PCB-MCP/internal/rules"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
	"github.com/fleaxiao/PCB-MCP/internal/tools/handlers"
)

const sessionID = "pcbmcp"

type server struct {
	gateway *tools.Gateway
}

// invoke forwards an MCP call to the shared tool gateway and renders the
// output as MCP text content.
func (s *server) invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, any, error) {
	out, err := s.gateway.Invoke(ctx, &tools.ToolInvocation{
		SessionID: sessionID,
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, nil, err
	}
	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Content}},
	}
	if out.Success != nil && !*out.Success {
		result.IsError = true
	}
	return result, out.Data, nil
}

type refArgs struct {
	Reference string `json:"reference,omitempty" jsonschema:"footprint reference designator, e.g. U1"`
	Net       string `json:"net,omitempty" jsonschema:"net name, e.g. GND"`
	TrackID   string `json:"track_id,omitempty" jsonschema:"track id"`
}

type moveArgs struct {
	Reference string   `json:"reference" jsonschema:"footprint reference designator"`
	X         float64  `json:"x" jsonschema:"target x in mm"`
	Y         float64  `json:"y" jsonschema:"target y in mm"`
	Rotation  *float64 `json:"rotation,omitempty" jsonschema:"rotation in degrees"`
}

type routeArgs struct {
	Net   string       `json:"net" jsonschema:"net name"`
	Path  [][2]float64 `json:"path" jsonschema:"track path as [x, y] points, at least two"`
	Width float64      `json:"width" jsonschema:"track width in mm"`
	Layer string       `json:"layer" jsonschema:"copper layer name"`
}

type resizeArgs struct {
	TrackID string  `json:"track_id" jsonschema:"track id"`
	Width   float64 `json:"width" jsonschema:"new width in mm"`
}

type layerArgs struct {
	TrackID string `json:"track_id" jsonschema:"track id"`
	Layer   string `json:"layer" jsonschema:"target copper layer"`
}

type trackArgs struct {
	TrackID string `json:"track_id" jsonschema:"track id"`
}

type reassignArgs struct {
	Pad string `json:"pad" jsonschema:"pad reference, e.g. U1.3"`
	Net string `json:"net,omitempty" jsonschema:"target net name, empty to disconnect"`
}

type fitArgs struct {
	Margin *float64 `json:"margin,omitempty" jsonschema:"uniform margin in mm around the placed area"`
}

type emptyArgs struct{}

func main() {
	boardPath := flag.String("board", "", "Board file to serve (required)")
	constraintsPath := flag.String("constraints", "", "YAML constraint config for drc_check")
	toolRetries := flag.Int("tool-retries", models.DefaultToolRetryLimit, "Attempts per tool invocation")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *boardPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	store := session.NewStore()
	if _, err := store.Checkout(sessionID, *boardPath); err != nil {
		logger.Error("failed to open board", "error", err)
		os.Exit(1)
	}
	constraints := []rules.Constraint{{
		ID:         "default-clearance",
		Kind:       rules.KindClearance,
		Severity:   rules.SeverityError,
		Provenance: rules.ProvenanceConfig,
		Params:     map[string]any{"min_mm": rules.DefaultClearanceMM},
	}}
	if *constraintsPath != "" {
		cs, err := rules.LoadConfig(*constraintsPath)
		if err != nil {
			logger.Error("failed to load constraints", "error", err)
			os.Exit(1)
		}
		constraints = cs
	}
	if err := store.SetConstraints(sessionID, constraints); err != nil {
		logger.Error("failed to set constraints", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	handlers.RegisterAll(registry, store)
	srv := &server{gateway: tools.NewGateway(registry, *toolRetries)}

	impl := mcp.NewServer(&mcp.Implementation{Name: "pcbmcp", Version: "1.0.0"}, nil)

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "board_info",
		Description: "Inspect the board: pass reference, net, or track_id for details, or nothing for a summary.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args refArgs) (*mcp.CallToolResult, any, error) {
		m := map[string]any{}
		if args.Reference != "" {
			m["reference"] = args.Reference
		}
		if args.Net != "" {
			m["net"] = args.Net
		}
		if args.TrackID != "" {
			m["track_id"] = args.TrackID
		}
		return srv.invoke(ctx, "board_info", m)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "board_report",
		Description: "Produce a full report of modules, nets, and tracks on the board.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args emptyArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "board_report", nil)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "utilization_check",
		Description: "Check footprint and board area utilization ratios.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args emptyArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "utilization_check", nil)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "drc_check",
		Description: "Run the design rule check against the current board state and list violations.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args emptyArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "drc_check", nil)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "move_footprint",
		Description: "Move a footprint to a new position, optionally rotating it.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args moveArgs) (*mcp.CallToolResult, any, error) {
		m := map[string]any{"reference": args.Reference, "x": args.X, "y": args.Y}
		if args.Rotation != nil {
			m["rotation"] = *args.Rotation
		}
		return srv.invoke(ctx, "move_footprint", m)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "route_track",
		Description: "Route a new track on a net along a path of [x, y] points.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args routeArgs) (*mcp.CallToolResult, any, error) {
		path := make([]any, len(args.Path))
		for i, p := range args.Path {
			path[i] = []any{p[0], p[1]}
		}
		return srv.invoke(ctx, "route_track", map[string]any{
			"net": args.Net, "path": path, "width": args.Width, "layer": args.Layer,
		})
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "resize_track",
		Description: "Change the width of an existing track.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args resizeArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "resize_track", map[string]any{"track_id": args.TrackID, "width": args.Width})
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "change_layer",
		Description: "Move an existing track to a different copper layer.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args layerArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "change_layer", map[string]any{"track_id": args.TrackID, "layer": args.Layer})
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "remove_track",
		Description: "Delete a track from the board.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args trackArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "remove_track", map[string]any{"track_id": args.TrackID})
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "reassign_net",
		Description: "Connect a pad (REF.PAD) to another net, or disconnect it with an empty net.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reassignArgs) (*mcp.CallToolResult, any, error) {
		return srv.invoke(ctx, "reassign_net", map[string]any{"pad": args.Pad, "net": args.Net})
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "fit_outline",
		Description: "Fit the board outline to the bounding box of the placed footprints and tracks.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fitArgs) (*mcp.CallToolResult, any, error) {
		a := map[string]any{}
		if args.Margin != nil {
			a["margin"] = *args.Margin
		}
		return srv.invoke(ctx, "fit_outline", a)
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "save_board",
		Description: "Write the current working state back to the board file.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args emptyArgs) (*mcp.CallToolResult, any, error) {
		if err := store.Commit(sessionID); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("saved %s", *boardPath)}},
		}, nil, nil
	})

	mcp.AddTool(impl, &mcp.Tool{
		Name:        "discard_changes",
		Description: "Throw away unsaved edits and reload the last saved board state.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args emptyArgs) (*mcp.CallToolResult, any, error) {
		if err := store.DiscardWorking(sessionID); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "unsaved changes discarded"}},
		}, nil, nil
	})

	logger.Info("serving board over stdio", "board", *boardPath)
	if err := impl.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
