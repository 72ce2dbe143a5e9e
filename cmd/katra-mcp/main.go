// katra-mcp exposes the memory store as MCP tools over stdio, so agent
// frontends can store, query, and consolidate memories directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ckoons/katra-sub002/internal/config"
	"github.com/ckoons/katra-sub002/internal/memory"
	"github.com/ckoons/katra-sub002/internal/types"
)

func main() {
	_ = godotenv.Load()

	s := server.NewMCPServer(
		"katra-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(storeTool(), handleStore)
	s.AddTool(queryTool(), handleQuery)
	s.AddTool(statsTool(), handleStats)
	s.AddTool(archiveTool(), handleArchive)
	s.AddTool(consolidateTool(), handleConsolidate)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*memory.Store, error) {
	dir := os.Getenv("KATRA_DATA")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".katra")
	}
	cfg, err := config.Load(filepath.Join(dir, "katra.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir
	return memory.Open(cfg)
}

func storeTool() mcp.Tool {
	return mcp.NewTool("katra_store",
		mcp.WithDescription("Store a memory record for a CI. Returns the new record id."),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("Owner (CI) id the memory belongs to"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Free-text memory content"),
		),
		mcp.WithString("memory_type",
			mcp.Description("experience, knowledge, reflection, pattern, goal, or decision. Default: experience"),
		),
		mcp.WithNumber("importance",
			mcp.Description("Importance in [0,1]. Default: 0.5"),
		),
		mcp.WithBoolean("marked_important",
			mcp.Description("Never archive this memory"),
		),
		mcp.WithBoolean("marked_forgettable",
			mcp.Description("Always archive this memory"),
		),
	)
}

func handleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ownerID, _ := args["owner_id"].(string)
	content, _ := args["content"].(string)
	memType, _ := args["memory_type"].(string)
	if memType == "" {
		memType = string(types.TypeExperience)
	}
	importance := 0.5
	if v, ok := args["importance"].(float64); ok {
		importance = v
	}
	markedImportant, _ := args["marked_important"].(bool)
	markedForgettable, _ := args["marked_forgettable"].(bool)

	if ownerID == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	s, err := openStore()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	defer s.Close()

	rec, err := s.CreateRecord(ownerID, content, types.MemoryType(memType), importance)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create record: %v", err)), nil
	}
	rec.MarkedImportant = markedImportant
	rec.MarkedForgettable = markedForgettable

	id, err := s.Put(rec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store record: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored memory %s", id)), nil
}

func queryTool() mcp.Tool {
	return mcp.NewTool("katra_query",
		mcp.WithDescription("Query a CI's memories by type and importance. Each returned record counts as an access."),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("Owner (CI) id to query"),
		),
		mcp.WithString("memory_type",
			mcp.Description("Filter by memory type"),
		),
		mcp.WithNumber("min_importance",
			mcp.Description("Minimum importance filter"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 20)"),
		),
	)
}

func handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ownerID, _ := args["owner_id"].(string)
	memType, _ := args["memory_type"].(string)
	minImportance, _ := args["min_importance"].(float64)
	limit := 20
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	if ownerID == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}

	s, err := openStore()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	defer s.Close()

	records, err := s.Query(ownerID, memory.QueryParams{
		OwnerID:       ownerID,
		Type:          types.MemoryType(memType),
		MinImportance: minImportance,
		Limit:         limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func statsTool() mcp.Tool {
	return mcp.NewTool("katra_stats",
		mcp.WithDescription("Get memory statistics for a CI: totals, archived count, per-type breakdown."),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("Owner (CI) id"),
		),
	)
}

func handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ownerID, _ := args["owner_id"].(string)
	if ownerID == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}

	s, err := openStore()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	defer s.Close()

	stats, err := s.Stats(ownerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func archiveTool() mcp.Tool {
	return mcp.NewTool("katra_archive",
		mcp.WithDescription("Archive a CI's old, weak memories. Pattern outliers and marked-important records are preserved."),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("Owner (CI) id"),
		),
		mcp.WithNumber("max_age_days",
			mcp.Description("Archive records older than this many days (default 30)"),
		),
	)
}

func handleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ownerID, _ := args["owner_id"].(string)
	maxAge := 30
	if v, ok := args["max_age_days"].(float64); ok {
		maxAge = int(v)
	}
	if ownerID == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}

	s, err := openStore()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	defer s.Close()

	count, err := s.Archive(ownerID, maxAge)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("archive failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Archived %d records", count)), nil
}

func consolidateTool() mcp.Tool {
	return mcp.NewTool("katra_consolidate",
		mcp.WithDescription("Run a full sleep consolidation cycle for a CI: strength routing, graph centrality, pattern extraction. Returns cycle statistics."),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("Owner (CI) id"),
		),
	)
}

func handleConsolidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ownerID, _ := args["owner_id"].(string)
	if ownerID == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}

	s, err := openStore()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	defer s.Close()

	ctl, err := s.Controller(ownerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("controller failed: %v", err)), nil
	}
	if err := ctl.BeginSleep(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("begin sleep failed: %v", err)), nil
	}
	if _, _, _, err := ctl.RouteByStrength(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("strength routing failed: %v", err)), nil
	}
	if _, err := ctl.CalculateCentrality(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("centrality failed: %v", err)), nil
	}
	if _, err := ctl.ExtractPatterns(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pattern extraction failed: %v", err)), nil
	}
	stats, err := ctl.Complete()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("complete failed: %v", err)), nil
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
