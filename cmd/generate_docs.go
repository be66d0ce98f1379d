package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/store"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Render markdown documentation for every MCP tool slotkeeper registers.
Tools are registered against an in-memory store, so no database is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(outputFile string) error {
	markdown, err := toolsDocumentation()
	if err != nil {
		return err
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

// toolsDocumentation registers every tool against an in-memory store and
// renders their definitions.
func toolsDocumentation() (string, error) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory

	st := store.NewMemoryStore()
	svc := scheduler.New(st, cfg.Scheduling)
	serverContext := server.NewServerContext(ctx, svc, st, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer func() {
		_ = serverContext.Shutdown()
	}()

	readOnlySrv := mcpserver.NewMCPServer("slotkeeper", version)
	if err := registerAllTools(readOnlySrv, serverContext, true); err != nil {
		return "", err
	}
	readOnlyTools := readOnlySrv.ListTools()

	mcpSrv := mcpserver.NewMCPServer("slotkeeper", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, serverContext, false); err != nil {
		return "", err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	writeTools := make(map[string]bool)
	for name, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
		if _, ok := readOnlyTools[name]; !ok {
			writeTools[name] = true
		}
	}

	return generateToolsMarkdown(tools, writeTools), nil
}

var toolCategories = map[string]string{
	"list_calendars":       "Calendar Management",
	"create_calendar":      "Calendar Management",
	"check_availability":   "Scheduling",
	"find_available_slots": "Scheduling",
	"is_day_underutilized": "Scheduling",
	"analyze_range":        "Scheduling",
	"resolve_conflicts":    "Scheduling",
}

const calendarSelectionNotes = `## Calendar Selection

Most tools accept an optional ` + "`calendarId`" + ` and ` + "`agentId`" + ` to pick the calendar they act on.

- Without either, the configured agent's default calendar is used. It is created on first use.
- Over HTTP the ` + "`X-Agent-ID`" + ` header binds a call to one agent. Calendars of other agents are not visible.
- Tools that modify appointments are only registered when the server runs with ` + "`--yolo`" + `.

`

// generateToolsMarkdown renders tools grouped by category. Tools in
// writeTools are marked as requiring --yolo.
func generateToolsMarkdown(tools []mcp.Tool, writeTools map[string]bool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := getCategoryFromToolName(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools exposed by `slotkeeper serve`. Generated from the registered tool definitions.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", c, strings.ToLower(strings.ReplaceAll(c, " ", "-")))
	}
	sb.WriteString("\n")
	sb.WriteString(calendarSelectionNotes)

	for _, c := range categories {
		group := byCategory[c]
		slices.SortFunc(group, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

		fmt.Fprintf(&sb, "## %s\n\n", c)
		for _, tool := range group {
			sb.WriteString(generateToolMarkdown(tool, writeTools[tool.Name]))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func getCategoryFromToolName(name string) string {
	op, ok := strings.CutPrefix(name, "calendar_")
	if !ok || op == "" {
		return "Other"
	}
	if c, ok := toolCategories[op]; ok {
		return c
	}
	return "Appointments"
}

func generateToolMarkdown(tool mcp.Tool, write bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}
	if write {
		sb.WriteString("**Write tool:** only registered with `--yolo`.\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	for _, name := range slices.Sorted(maps.Keys(props)) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		desc, ok := prop["description"].(string)
		if !ok {
			desc = propertyType(prop) + " parameter"
		}
		if def, ok := prop["default"]; ok {
			desc += fmt.Sprintf(" (default `%v`)", def)
		}
		fmt.Fprintf(&sb, "- `%s` (%s): %s\n", name, presence, desc)
	}
	sb.WriteString("\n")
	return sb.String()
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
