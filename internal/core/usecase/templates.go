package usecase

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

type PromptTemplate struct {
	Instructions string   `yaml:"instructions"`
	Sections     []string `yaml:"sections"`
}

type TemplateSet struct {
	System        string                    `yaml:"system"`
	NoInformation string                    `yaml:"no_information"`
	Templates     map[string]PromptTemplate `yaml:"templates"`
}

// LoadTemplates parses a template set. Every query type must have a template.
func LoadTemplates(raw []byte) (*TemplateSet, error) {
	var set TemplateSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if strings.TrimSpace(set.System) == "" {
		return nil, fmt.Errorf("parse templates: system prompt is empty")
	}
	if strings.TrimSpace(set.NoInformation) == "" {
		return nil, fmt.Errorf("parse templates: no_information answer is empty")
	}
	for _, qt := range domain.AllQueryTypes() {
		tpl, ok := set.Templates[string(qt)]
		if !ok {
			return nil, fmt.Errorf("parse templates: missing template for %s", qt)
		}
		if len(tpl.Sections) == 0 {
			return nil, fmt.Errorf("parse templates: template %s has no sections", qt)
		}
	}
	return &set, nil
}

func DefaultTemplates() *TemplateSet {
	set, err := LoadTemplates(defaultTemplatesYAML)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *TemplateSet) For(queryType domain.QueryType) PromptTemplate {
	if tpl, ok := s.Templates[string(queryType)]; ok {
		return tpl
	}
	return s.Templates[string(domain.QueryTypeGeneral)]
}

// RequiredSections lists the headings a draft of this type must contain.
func (s *TemplateSet) RequiredSections(queryType domain.QueryType) []string {
	return append([]string(nil), s.For(queryType).Sections...)
}
