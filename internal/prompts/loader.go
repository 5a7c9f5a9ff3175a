// Package prompts holds the LLM prompt templates used for document generation.
// Templates live in an embedded JSON file keyed by name and use text/template
// syntax.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Template names
const (
	JobHighlights  = "job-highlights"
	TailoredResume = "tailored-resume"
	CoverLetter    = "cover-letter"
)

//go:embed documents.json
var documentsJSON []byte

var load = sync.OnceValues(func() (*template.Template, error) {
	return parse(documentsJSON)
})

// parse builds one template set from a JSON object of name to template text.
// A reference to a key missing from the render data is an error, so a renamed
// field cannot reach the model as an empty string.
func parse(raw []byte) (*template.Template, error) {
	var sources map[string]string
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file: %w", err)
	}

	root := template.New("prompts").Option("missingkey=error")
	for name, text := range sources {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("failed to parse prompt %q: %w", name, err)
		}
	}
	return root, nil
}

// Render fills the named template from data
func Render(name string, data map[string]string) (string, error) {
	set, err := load()
	if err != nil {
		return "", err
	}
	return execute(set, name, data)
}

func execute(set *template.Template, name string, data map[string]string) (string, error) {
	tmpl := set.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return sb.String(), nil
}

// Names lists the available templates, sorted
func Names() ([]string, error) {
	set, err := load()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range set.Templates() {
		if t.Name() != "prompts" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
