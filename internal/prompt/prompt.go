// Package prompt renders the text sent to the classifier. Every function is
// pure and byte-deterministic for identical inputs.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/intake/internal/taxonomy"
)

// NoClarifications marks an empty clarification history.
const NoClarifications = "(none)"

// System returns the instruction sent as the system prompt with every request.
func System() string {
	return `You are an AI assistant tasked with triaging customer questions for a pharmaceutical company.
Answer only with what the request asks for. Do not give medical advice.`
}

// Summary asks for a concise restatement of question. extraDetails is
// appended verbatim when non-empty.
func Summary(question, extraDetails string) string {
	var b strings.Builder
	b.WriteString("Summarize the following customer question clearly and concisely:\n")
	b.WriteString(question)
	if extraDetails != "" {
		b.WriteString("\n\nAdditional details from the customer:\n")
		b.WriteString(extraDetails)
	}
	return b.String()
}

// catalogEntry is the shape of a taxonomy entry as shown to the model.
type catalogEntry struct {
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Classification asks the model to pick exactly one taxonomy type for summary,
// taking the clarification history (oldest first) into account.
func Classification(summary string, tax *taxonomy.Taxonomy, clarifications []string) string {
	return fmt.Sprintf(`Classify the following question summary:
%q

Clarifications provided by the customer:
%s

Choose one category and one type from the structured list below.

Only respond with a single JSON object with exactly these keys:
{
  "category": "Medical" or "Non-Medical",
  "type": "exact type name",
  "confidence": number between 0.0 and 1.0
}

Use this schema to guide your classification:
%s

If you are less than 100%% confident, set confidence < 1.0.`,
		summary,
		clarificationList(clarifications),
		catalogJSON(tax),
	)
}

func clarificationList(clarifications []string) string {
	if len(clarifications) == 0 {
		return NoClarifications
	}
	lines := make([]string, len(clarifications))
	for i, c := range clarifications {
		lines[i] = "- " + c
	}
	return strings.Join(lines, "\n")
}

func catalogJSON(tax *taxonomy.Taxonomy) string {
	all := tax.AllTypes()
	out := make([]catalogEntry, len(all))
	for i, e := range all {
		kw := e.Keywords
		if kw == nil {
			kw = []string{}
		}
		out[i] = catalogEntry{
			Category:    string(e.Category),
			Type:        e.Type,
			Description: e.Description,
			Keywords:    kw,
		}
	}
	// marshalling plain strings and slices cannot fail
	b, _ := json.MarshalIndent(out, "", "  ")
	return string(b)
}
