package router

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/tool_selector.md
var toolSelectorTemplate string

// selectorTmpl is parsed once at init; the template is embedded, so a parse
// failure is a build defect and panicking via Must is appropriate.
var selectorTmpl = template.Must(template.New("tool_selector").Parse(toolSelectorTemplate))

// promptContext is the data rendered into the tool selector template.
type promptContext struct {
	Tools string
	Query string
}

// renderSelectorPrompt renders the user prompt the LLM backend sends to rank
// the catalog against a query.
func renderSelectorPrompt(tools, query string) (string, error) {
	var buf bytes.Buffer
	if err := selectorTmpl.Execute(&buf, promptContext{Tools: tools, Query: query}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
