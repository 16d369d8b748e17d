package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/nexus/internal/classify"
	"github.com/starford/nexus/internal/resolver"
)

const rulesURI = "nexus://classification-rules"

const rulesPreamble = `# Nexus Classification Rules

Documents are routed to exactly one department by case-insensitive substring
matching on their extracted text. Rules are checked top to bottom and the
first rule with any matching keyword wins. Text that matches nothing, and
documents whose text could not be extracted, are filed as General.

Substring matching is literal: "tech" matches "technology" but not
"architecture".

## Rules (priority order)

`

const rulesFooter = `
## Context lines

get_context renders every outgoing link of an entity as
"Linked to <target-id> via <relationship_type>". An entity with no outgoing
links yields the single line "%s".
`

// renderRules formats the rule table as Markdown.
func renderRules(rules []classify.Rule) string {
	var b strings.Builder
	b.WriteString(rulesPreamble)
	for i, r := range rules {
		quoted := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			quoted[j] = "`" + kw + "`"
		}
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, r.Department, strings.Join(quoted, ", "))
	}
	fmt.Fprintf(&b, "%d. **General**: fallback\n", len(rules)+1)
	fmt.Fprintf(&b, rulesFooter, resolver.NoContextMessage)
	return b.String()
}
