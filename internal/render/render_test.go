// ABOUTME: Tests for entity rendering to Markdown and HTML
// ABOUTME: Checks properties, related sections and escaping of user text

package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/para-sync/internal/entity"
)

func TestMarkdown(t *testing.T) {
	due := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	project := &entity.Entity{
		ID:          "P1",
		Title:       "Launch *v2*",
		Description: "Ship the **new** sync layer.",
		Status:      "active",
		DueDate:     &due,
		AreaID:      "A1",
		Extra:       map[string]any{"color": "blue"},
	}
	tasks := []*entity.Entity{
		{ID: "T1", Title: "Write docs", Status: "done"},
		{ID: "T2", Title: "Cut release"},
	}

	out := string(Markdown(project, entity.TypeProject, Section{Title: "Tasks", Items: tasks}, Section{Title: "Empty"}))

	assert.True(t, strings.HasPrefix(out, `# Launch \*v2\*`))
	assert.Contains(t, out, "| Status | active |")
	assert.Contains(t, out, "| Due | 2026-04-02 |")
	assert.Contains(t, out, "| color | blue |")
	assert.Contains(t, out, "Ship the **new** sync layer.")
	assert.Contains(t, out, "## Tasks\n\n- [x] Write docs\n- [ ] Cut release\n")
	assert.NotContains(t, out, "## Empty")
}

func TestHTML(t *testing.T) {
	page := Markdown(&entity.Entity{
		ID:          "R1",
		Title:       "Reading <list>",
		Description: "See [the plan](https://example.com).",
		Extra:       map[string]any{"note": "a|b"},
	}, entity.TypeResource)

	html, err := HTML(page)
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Reading &lt;list&gt;</h1>")
	assert.Contains(t, html, `<a href="https://example.com">the plan</a>`)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>a|b</td>")
}
