package llm

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFiles embed.FS

type promptFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

// PromptRegistry holds the parsed prompt templates shipped with the
// binary.
type PromptRegistry struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewPromptRegistry loads the embedded YAML prompt files.
func NewPromptRegistry() (*PromptRegistry, error) {
	r := &PromptRegistry{templates: make(map[string]*template.Template)}
	if err := r.loadPromptFile("iterate"); err != nil {
		return nil, fmt.Errorf("failed to load iterate prompt: %w", err)
	}
	return r, nil
}

func (r *PromptRegistry) loadPromptFile(name string) error {
	filename := fmt.Sprintf("prompts/%s.yaml", name)
	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}

	tmpl, err := template.New(pf.Name).Parse(pf.Template)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", pf.Name, err)
	}

	r.mu.Lock()
	r.templates[pf.Name] = tmpl
	r.mu.Unlock()
	return nil
}

// IteratePromptData fills the revision prompt.
type IteratePromptData struct {
	CurrentContent     string
	AcceptedComments   string
	AuthorInstructions string
}

// RenderIterate builds the revision prompt from the current document,
// the accepted feedback, and the author's instructions.
func (r *PromptRegistry) RenderIterate(data IteratePromptData) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates["iterate"]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("iterate prompt not loaded")
	}

	if data.AcceptedComments == "" {
		data.AcceptedComments = "(no accepted comments)"
	}
	if data.AuthorInstructions == "" {
		data.AuthorInstructions = "(none)"
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering iterate prompt: %w", err)
	}
	return sb.String(), nil
}
