package decision

import (
	"regexp"
	"strings"

	"github.com/harrison/phasegate/internal/models"
)

// selectorToken matches #id, .class and [attr] sequences with an optional
// leading tag name, starting at a word boundary.
var selectorToken = regexp.MustCompile("(?:^|[\\s(`'\"])((?:[a-zA-Z][a-zA-Z0-9-]*)?(?:#[a-zA-Z_][\\w-]*|\\.[a-zA-Z_][\\w-]*|\\[[a-zA-Z_:-]+(?:=[^\\]]*)?\\])+)")

// backticked captures `code` spans in prose.
var backticked = regexp.MustCompile("`([^`]+)`")

var fileExtensions = []string{".html", ".htm", ".js", ".css", ".png", ".jpg", ".jpeg", ".svg", ".gif", ".json", ".md", ".txt", ".go", ".ts"}

func looksLikeFilename(token string) bool {
	lower := strings.ToLower(token)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ExtractSelector finds a selector-like token in an issue's location,
// falling back to its description. Prose is treated conservatively: a
// tag-qualified class like "index.html" only counts inside backticks.
func ExtractSelector(issue models.Issue) (string, bool) {
	if tok, ok := firstToken(issue.Location, false); ok {
		return tok, true
	}

	for _, m := range backticked.FindAllStringSubmatch(issue.Description, -1) {
		if tok, ok := firstToken(m[1], false); ok {
			return tok, true
		}
	}
	return firstToken(issue.Description, true)
}

func firstToken(s string, prose bool) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, m := range selectorToken.FindAllStringSubmatch(s, -1) {
		tok := strings.TrimRight(m[1], ".")
		if tok == "" || looksLikeFilename(tok) {
			continue
		}
		if prose && !strings.HasPrefix(tok, ".") && !strings.ContainsAny(tok, "#[") {
			continue
		}
		return tok, true
	}
	return "", false
}
