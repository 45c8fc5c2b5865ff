package output

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Column returns the index of the first header cell containing one of the names.
func (t Table) Column(names ...string) int {
	for i, h := range t.Header {
		h = strings.ToLower(h)
		for _, name := range names {
			if strings.Contains(h, name) {
				return i
			}
		}
	}
	return -1
}

// Section is a heading together with the blocks that follow it up to the next heading.
type Section struct {
	Title      string
	Level      int
	Paragraphs []string
	Items      []string
	Tables     []Table
}

func (s Section) Text() string {
	parts := make([]string, 0, len(s.Paragraphs)+len(s.Items))
	parts = append(parts, s.Paragraphs...)
	parts = append(parts, s.Items...)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (s Section) empty() bool {
	return len(s.Paragraphs) == 0 && len(s.Items) == 0 && len(s.Tables) == 0
}

// Draft is the block structure of a generated markdown answer.
type Draft struct {
	// Preamble holds blocks that appear before the first heading.
	Preamble Section
	Sections []Section
}

// Section finds a section by title, case-insensitively. Aliases are tried in order.
func (d Draft) Section(titles ...string) (Section, bool) {
	for _, title := range titles {
		want := normalizeTitle(title)
		for _, s := range d.Sections {
			if normalizeTitle(s.Title) == want {
				return s, true
			}
		}
	}
	return Section{}, false
}

func (d Draft) HasSection(title string) bool {
	s, ok := d.Section(title)
	return ok && !s.empty()
}

func (d Draft) Tables() []Table {
	out := append([]Table(nil), d.Preamble.Tables...)
	for _, s := range d.Sections {
		out = append(out, s.Tables...)
	}
	return out
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Paragraphs such as "Conclusion: Maria fits best." open a section when the label is known.
var labelPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{2,30}):\s*(.*)$`)

var knownLabels = map[string]struct{}{
	"reasoning": {}, "answer": {}, "direct answer": {}, "conclusion": {}, "summary": {},
	"strengths": {}, "gaps": {}, "risks": {}, "risk assessment": {}, "verification": {},
	"ranking": {}, "match scores": {}, "team composition": {}, "comparison table": {},
}

// StripLabel removes a known section label such as "Conclusion:" from the
// start of a paragraph.
func StripLabel(text string) string {
	if m := labelPattern.FindStringSubmatch(text); m != nil {
		if _, ok := knownLabels[normalizeTitle(m[1])]; ok {
			return strings.TrimSpace(m[2])
		}
	}
	return text
}

func ParseDraft(draft string) Draft {
	source := []byte(draft)
	root := markdown.Parser().Parse(text.NewReader(source))

	var out Draft
	current := &out.Preamble
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			out.Sections = append(out.Sections, Section{
				Title: inlineText(n, source),
				Level: n.Level,
			})
			current = &out.Sections[len(out.Sections)-1]
		case *ast.Paragraph:
			para := inlineText(n, source)
			if m := labelPattern.FindStringSubmatch(para); m != nil {
				if _, ok := knownLabels[normalizeTitle(m[1])]; ok {
					out.Sections = append(out.Sections, Section{Title: strings.TrimSpace(m[1]), Level: 3})
					current = &out.Sections[len(out.Sections)-1]
					para = strings.TrimSpace(m[2])
				}
			}
			if para != "" {
				current.Paragraphs = append(current.Paragraphs, para)
			}
		case *ast.List:
			current.Items = append(current.Items, listItems(n, source)...)
		case *ast.Blockquote:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t := inlineText(c, source); t != "" {
					current.Paragraphs = append(current.Paragraphs, t)
				}
			}
		case *east.Table:
			current.Tables = append(current.Tables, tableOf(n, source))
		}
	}
	return out
}

func listItems(list *ast.List, source []byte) []string {
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var parts []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				items = append(items, listItems(nested, source)...)
				continue
			}
			if t := inlineText(c, source); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			items = append(items, strings.Join(parts, " "))
		}
	}
	return items
}

func tableOf(table *east.Table, source []byte) Table {
	var out Table
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		cells := make([]string, 0, 4)
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, inlineText(cell, source))
		}
		if _, ok := row.(*east.TableHeader); ok {
			out.Header = cells
			continue
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func inlineText(node ast.Node, source []byte) string {
	var b strings.Builder
	writeInline(&b, node, source)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeInline(b *strings.Builder, node ast.Node, source []byte) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(source))
		case *ast.RawHTML, *ast.HTMLBlock:
		default:
			writeInline(b, c, source)
		}
	}
}

func normalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = strings.Trim(title, "#*:_ ")
	return strings.Join(strings.Fields(title), " ")
}
