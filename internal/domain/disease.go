package domain

import "strings"

// DiseaseInfo is the human-readable enrichment attached to a diagnosis.
type DiseaseInfo struct {
	Description string   `json:"description" yaml:"description"`
	Causes      []string `json:"causes" yaml:"causes"`
	Symptoms    []string `json:"symptoms" yaml:"symptoms"`
	Prevention  []string `json:"prevention" yaml:"prevention"`
	Treatment   []string `json:"treatment" yaml:"treatment"`
	Source      string   `json:"source" yaml:"source"`
}

// Empty reports whether the info carries no usable content at all.
func (d DiseaseInfo) Empty() bool {
	return strings.TrimSpace(d.Description) == "" &&
		len(d.Causes) == 0 &&
		len(d.Symptoms) == 0 &&
		len(d.Prevention) == 0 &&
		len(d.Treatment) == 0
}

// Complete reports whether every list is populated.
func (d DiseaseInfo) Complete() bool {
	return len(d.Causes) > 0 && len(d.Symptoms) > 0 && len(d.Prevention) > 0 && len(d.Treatment) > 0
}

// Clone returns a deep copy so callers can't mutate shared table entries.
func (d DiseaseInfo) Clone() DiseaseInfo {
	out := d
	out.Causes = append([]string(nil), d.Causes...)
	out.Symptoms = append([]string(nil), d.Symptoms...)
	out.Prevention = append([]string(nil), d.Prevention...)
	out.Treatment = append([]string(nil), d.Treatment...)
	return out
}
