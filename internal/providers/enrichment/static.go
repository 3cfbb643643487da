package enrichment

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"agrinix/internal/domain"
)

//go:embed diseases.yaml
var embeddedTable []byte

type tableDocument struct {
	Diseases map[string]domain.DiseaseInfo `yaml:"diseases"`
}

// Static answers from the reference table and never fails.
type Static struct {
	entries map[string]domain.DiseaseInfo
}

// NewStatic loads the embedded table, with entries from overridePath (when
// set) replacing embedded ones of the same key.
func NewStatic(overridePath string) (*Static, error) {
	entries, err := parseTable(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("static table: %w", err)
	}
	if path := strings.TrimSpace(overridePath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("static table: read override: %w", err)
		}
		extra, err := parseTable(raw)
		if err != nil {
			return nil, fmt.Errorf("static table: %s: %w", path, err)
		}
		for k, v := range extra {
			entries[k] = v
		}
	}
	return &Static{entries: entries}, nil
}

func parseTable(raw []byte) (map[string]domain.DiseaseInfo, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]domain.DiseaseInfo, len(doc.Diseases))
	for key, info := range doc.Diseases {
		info.Source = SourceStatic
		out[normalizeKey(key)] = info
	}
	return out, nil
}

func (s *Static) Name() string { return SourceStatic }

// Fetch returns the table entry for class, the healthy entry for healthy
// classes, or the generic template.
func (s *Static) Fetch(ctx context.Context, class string) (*domain.DiseaseInfo, error) {
	key := normalizeKey(class)
	if info, ok := s.entries[key]; ok {
		out := info.Clone()
		return &out, nil
	}
	if isHealthyKey(key) {
		if info, ok := s.entries[domain.HealthyMarker]; ok {
			out := info.Clone()
			return &out, nil
		}
	}
	out := GenericInfo(class)
	return &out, nil
}

// GenericInfo is the template used when nothing is known about class.
func GenericInfo(class string) domain.DiseaseInfo {
	return domain.DiseaseInfo{
		Description: fmt.Sprintf("Information about %s disease", humanize(class)),
		Causes:      []string{"Environmental factors", "Pathogen infection"},
		Symptoms:    []string{"Visible damage to plant tissue", "Abnormal growth patterns"},
		Prevention:  []string{"Good agricultural practices", "Regular monitoring"},
		Treatment:   []string{"Remove infected plants", "Apply appropriate treatments"},
		Source:      SourceDefault,
	}
}

func normalizeKey(class string) string {
	fields := strings.FieldsFunc(strings.ToLower(class), func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
	return strings.Join(fields, "_")
}

func isHealthyKey(key string) bool {
	for _, part := range strings.Split(key, "_") {
		if part == domain.HealthyMarker {
			return true
		}
	}
	return false
}
