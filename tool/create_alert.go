package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/internal/util"
)

const alertTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.title}}</title>
  <style>
    body { font-family: sans-serif; margin: 2em; }
    .severity { font-weight: bold; text-transform: uppercase; }
    .severity.critical { color: #c0392b; }
    .severity.warning { color: #e67e22; }
    .severity.info { color: #2980b9; }
    .meta { color: #666; font-size: 0.9em; }
  </style>
</head>
<body>
  <h1>{{.title}}</h1>
  <p class="severity {{.severity}}">{{.severity}}</p>
  <p>{{.summary}}</p>
  {{if .details}}<pre>{{.details}}</pre>{{end}}
  <p class="meta">Org: {{.org_id}} &middot; Created: {{.created_at}}</p>
</body>
</html>
`

// CreateAlertTool writes an HTML alert report into a per-deployment output
// directory. File names embed the owning org so reports from different
// tenants never collide.
type CreateAlertTool struct {
	dir string
}

// NewCreateAlertTool creates the tool writing into dir (created on first use).
func NewCreateAlertTool(dir string) *CreateAlertTool {
	return &CreateAlertTool{dir: dir}
}

// Descriptor returns the tool contract.
func (t *CreateAlertTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "create_alert",
		Description: "Create an HTML alert report for an observability finding. Use when the user asks to raise, save or export an alert.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":    map[string]any{"type": "string", "description": "Short alert title"},
				"severity": map[string]any{"type": "string", "enum": []string{"info", "warning", "critical"}},
				"summary":  map[string]any{"type": "string", "description": "One paragraph describing the finding"},
				"details":  map[string]any{"type": "string", "description": "Optional supporting evidence"},
			},
			"required": []string{"title", "severity", "summary"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
		RequiredGuardRails: []string{core.AttrOrgID},
	}
}

// Call renders and writes the report, returning its path.
func (t *CreateAlertTool) Call(_ context.Context, guard core.GuardRailContext, args map[string]any) (any, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alert dir: %w", err)
	}

	state := map[string]any{
		"title":      args["title"],
		"severity":   args["severity"],
		"summary":    args["summary"],
		"details":    args["details"],
		"org_id":     guard.OrgID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	html, err := util.RenderTemplate(alertTemplate, state)
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}

	path := filepath.Join(t.dir, fmt.Sprintf("alert_%s_%s.html", guard.OrgID, core.NewID()))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return nil, fmt.Errorf("write alert: %w", err)
	}
	return map[string]any{"path": path}, nil
}
