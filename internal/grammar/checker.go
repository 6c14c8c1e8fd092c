package grammar

import "context"

// Issue is one problem the grammar engine found, in document order.
// Offset and Length are in runes.
type Issue struct {
	Offset      int    `json:"offset"`
	Length      int    `json:"length"`
	Message     string `json:"message"`
	Replacement string `json:"replacement,omitempty"`
}

// Result is the corrected text plus the issues that produced it.
type Result struct {
	Corrected string
	Issues    []Issue
}

// Checker abstracts the grammar engine. Implementations must be safe for
// concurrent use; the production engine is a shared long-lived server process.
type Checker interface {
	Check(ctx context.Context, text, lang string) (Result, error)
}

// applyIssues rewrites text by substituting each issue's replacement,
// right to left so earlier offsets stay valid. Issues without a replacement
// are reported but leave the text unchanged.
func applyIssues(text string, issues []Issue) string {
	runes := []rune(text)
	for i := len(issues) - 1; i >= 0; i-- {
		issue := issues[i]
		if issue.Replacement == "" {
			continue
		}
		if issue.Offset < 0 || issue.Length < 0 || issue.Offset+issue.Length > len(runes) {
			continue
		}
		var next []rune
		next = append(next, runes[:issue.Offset]...)
		next = append(next, []rune(issue.Replacement)...)
		next = append(next, runes[issue.Offset+issue.Length:]...)
		runes = next
	}
	return string(runes)
}
