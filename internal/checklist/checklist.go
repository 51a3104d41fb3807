// Package checklist parses markdown requirement checklists and computes
// which items a suite run covered and verified.
package checklist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/phasegate/internal/models"
)

// Item is one task-list entry.
type Item struct {
	Section string `json:"section,omitempty"` // nearest preceding heading
	Text    string `json:"text"`
	Checked bool   `json:"checked"` // ticked in the source document
}

// Checklist is a parsed checklist document.
type Checklist struct {
	Path  string `json:"path,omitempty"`
	Items []Item `json:"items"`
}

// Parser turns markdown into a Checklist.
type Parser struct {
	markdown goldmark.Markdown
}

// NewParser creates a Parser with task-list support.
func NewParser() *Parser {
	return &Parser{
		markdown: goldmark.New(goldmark.WithExtensions(extension.TaskList)),
	}
}

// Parse extracts every `- [ ]` / `- [x]` item. Plain list items are ignored.
func (p *Parser) Parse(source []byte) (*Checklist, error) {
	doc := p.markdown.Parser().Parse(text.NewReader(source))

	cl := &Checklist{Items: []Item{}}
	section := ""

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			section = extractText(node, source)
			return ast.WalkSkipChildren, nil
		case *extast.TaskCheckBox:
			block := node.Parent()
			if block == nil {
				return ast.WalkContinue, nil
			}
			cl.Items = append(cl.Items, Item{
				Section: section,
				Text:    extractText(block, source),
				Checked: node.IsChecked,
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk checklist: %w", err)
	}
	return cl, nil
}

// ParseFile reads and parses a checklist file.
func (p *Parser) ParseFile(path string) (*Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist %s: %w", path, err)
	}
	cl, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse checklist %s: %w", path, err)
	}
	cl.Path = path
	return cl, nil
}

// extractText concatenates the text beneath n, stopping at nested lists.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(t.Value)
			case *ast.List:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// ItemCoverage records which phases matched an item.
type ItemCoverage struct {
	Item
	CoveredBy  []string `json:"covered_by,omitempty"`  // executed phases whose patterns match
	VerifiedBy []string `json:"verified_by,omitempty"` // passed phases whose patterns match
}

// Covered reports whether any executed phase matched the item.
func (c ItemCoverage) Covered() bool { return len(c.CoveredBy) > 0 }

// Verified reports whether any passed phase matched the item.
func (c ItemCoverage) Verified() bool { return len(c.VerifiedBy) > 0 }

// Coverage is the checklist attachment of a SuiteResult.
type Coverage struct {
	Path     string         `json:"path,omitempty"`
	Total    int            `json:"total"`
	Covered  int            `json:"covered"`
	Verified int            `json:"verified"`
	Items    []ItemCoverage `json:"items"`
}

// Percent returns verified items as a percentage of all items.
func (c *Coverage) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Verified) * 100 / float64(c.Total)
}

// Uncovered lists items no executed phase matched.
func (c *Coverage) Uncovered() []Item {
	var out []Item
	for _, ic := range c.Items {
		if !ic.Covered() {
			out = append(out, ic.Item)
		}
	}
	return out
}

// Compute matches phase checklist patterns against cl. Patterns are
// case-insensitive regular expressions; skipped phases count as not executed.
func Compute(cl *Checklist, results []models.PhaseResult) (*Coverage, error) {
	type matcher struct {
		phaseID string
		status  models.PhaseStatus
		res     []*regexp.Regexp
	}

	var matchers []matcher
	for _, r := range results {
		if r.Status == models.StatusSkipped || len(r.Phase.ChecklistPatterns) == 0 {
			continue
		}
		m := matcher{phaseID: r.PhaseID, status: r.Status}
		for _, pattern := range r.Phase.ChecklistPatterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("phase %s: invalid checklist pattern %q: %w", r.PhaseID, pattern, err)
			}
			m.res = append(m.res, re)
		}
		matchers = append(matchers, m)
	}

	cov := &Coverage{Path: cl.Path, Items: make([]ItemCoverage, 0, len(cl.Items))}
	for _, item := range cl.Items {
		ic := ItemCoverage{Item: item}
		for _, m := range matchers {
			if !matchesAny(m.res, item.Text) {
				continue
			}
			ic.CoveredBy = append(ic.CoveredBy, m.phaseID)
			if m.status == models.StatusPassed {
				ic.VerifiedBy = append(ic.VerifiedBy, m.phaseID)
			}
		}
		cov.Total++
		if ic.Covered() {
			cov.Covered++
		}
		if ic.Verified() {
			cov.Verified++
		}
		cov.Items = append(cov.Items, ic)
	}
	return cov, nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Provider resolves a suite's checklist file and computes its coverage.
type Provider struct {
	parser *Parser
}

// NewProvider creates a Provider.
func NewProvider() *Provider {
	return &Provider{parser: NewParser()}
}

// Coverage satisfies suite.ChecklistProvider. A suite without a checklist
// yields a nil attachment. Relative checklist paths resolve against the
// suite file's directory.
func (p *Provider) Coverage(ctx context.Context, s *models.Suite, results []models.PhaseResult) (interface{}, error) {
	if s == nil || s.Checklist == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Checklist
	if !filepath.IsAbs(path) && s.FilePath != "" {
		path = filepath.Join(filepath.Dir(s.FilePath), path)
	}

	cl, err := p.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}

	// Results may carry only IDs; fill patterns from the suite definition.
	byID := make(map[string]models.Phase, len(s.Phases))
	for _, ph := range s.Phases {
		byID[ph.ID] = ph
	}
	withPatterns := make([]models.PhaseResult, len(results))
	for i, r := range results {
		if len(r.Phase.ChecklistPatterns) == 0 {
			if ph, ok := byID[r.PhaseID]; ok {
				r.Phase = ph
			}
		}
		withPatterns[i] = r
	}

	return Compute(cl, withPatterns)
}
