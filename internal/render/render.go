// ABOUTME: Markdown and HTML rendering of cached entities for the CLI
// ABOUTME: Descriptions are Markdown; goldmark converts the assembled page to HTML

package render

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/para-sync/internal/entity"
)

// Section is a titled list of related entities shown under the main one.
type Section struct {
	Title string
	Items []*entity.Entity
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders e as a Markdown page: title, a property table, the
// description verbatim, then one bullet list per non-empty section.
func Markdown(e *entity.Entity, t entity.Type, sections ...Section) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", escapeInline(e.Title))

	props := properties(e, t)
	if len(props) > 0 {
		b.WriteString("| Field | Value |\n| --- | --- |\n")
		for _, p := range props {
			fmt.Fprintf(&b, "| %s | %s |\n", p[0], escapeCell(p[1]))
		}
		b.WriteString("\n")
	}

	if desc := strings.TrimSpace(e.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}

	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		for _, item := range s.Items {
			box := " "
			if item.Status == "done" || item.Status == "completed" {
				box = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", box, escapeInline(item.Title))
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

// HTML converts Markdown to HTML.
func HTML(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

func properties(e *entity.Entity, t entity.Type) [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("Type", string(t))
	add("ID", e.ID)
	add("Status", e.Status)
	add("Priority", e.Priority)
	if e.DueDate != nil {
		add("Due", e.DueDate.Format("2006-01-02"))
	}
	add("Project", e.ProjectID)
	add("Area", e.AreaID)
	add("Goal", e.GoalID)
	add("Reason", e.Reason)
	if e.OriginalID != "" {
		add("Archived from", fmt.Sprintf("%s %s", e.OriginalType, e.OriginalID))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Extra)) {
		add(k, fmt.Sprint(e.Extra[k]))
	}
	if !e.UpdatedAt.IsZero() {
		add("Updated", e.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return out
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}
