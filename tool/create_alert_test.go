package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/core"
)

func TestCreateAlertWritesReport(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()
	require.NoError(t, r.Register(NewCreateAlertTool(dir)))

	out, err := r.Invoke(context.Background(), "create_alert", testGuard(), map[string]any{
		"title":    "DDoS suspected",
		"severity": "critical",
		"summary":  "Outbound flood from 10.0.0.8",
	})
	require.NoError(t, err)

	m := out.(map[string]any)
	path, ok := m["path"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "alert_acme_"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "DDoS suspected")
	assert.Contains(t, string(content), "critical")
	assert.Contains(t, string(content), "acme")
}

func TestCreateAlertRejectsBadSeverity(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCreateAlertTool(t.TempDir())))

	_, err := r.Invoke(context.Background(), "create_alert", testGuard(), map[string]any{
		"title":    "x",
		"severity": "catastrophic",
		"summary":  "y",
	})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))
}

func TestCreateAlertEscapesContent(t *testing.T) {
	tl := NewCreateAlertTool(t.TempDir())
	out, err := tl.Call(context.Background(), testGuard(), map[string]any{
		"title":    "<script>alert(1)</script>",
		"severity": "info",
		"summary":  "plain",
	})
	require.NoError(t, err)

	path := out.(map[string]any)["path"].(string)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "<script>")
}
