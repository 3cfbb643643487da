package enrichment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"agrinix/internal/domain"
)

type section int

const (
	sectionNone section = iota
	sectionDescription
	sectionCauses
	sectionSymptoms
	sectionPrevention
	sectionTreatment
)

// Keyword stems that switch the extractor into a section. Stems match word
// prefixes; entries in exactWords must match the whole word.
var sectionStems = []struct {
	section section
	stems   []string
}{
	{sectionDescription, []string{"description", "overview", "summary", "about"}},
	{sectionCauses, []string{"cause", "causal", "reason", "trigger", "pathogen"}},
	{sectionSymptoms, []string{"symptom", "sign"}},
	{sectionPrevention, []string{"prevent", "avoid", "control"}},
	{sectionTreatment, []string{"treat", "cure", "manag", "remed"}},
}

var exactWords = map[string]bool{"sign": true, "about": true}

var (
	listPrefix  = regexp.MustCompile(`^(?:[-*+•●▪]\s+|\d{1,2}[.)]\s+|[a-z]\)\s+)`)
	headingHash = regexp.MustCompile(`^#{1,6}\s*`)
	mdEmphasis  = strings.NewReplacer("**", "", "__", "", "`", "")
)

// ExtractText parses free-form prose (markdown or plain) into DiseaseInfo.
// Lists it cannot fill stay empty; Complete fills them afterwards.
func ExtractText(text string) domain.DiseaseInfo {
	var (
		current     = sectionNone
		description []string
		lists       = map[section][]string{}
	)

	appendTo := func(sec section, item string) {
		if item == "" {
			return
		}
		if sec == sectionNone || sec == sectionDescription {
			description = append(description, item)
			return
		}
		lists[sec] = append(lists[sec], item)
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "```") || line == "---" {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, ">"))

		isHeading := headingHash.MatchString(line)
		line = headingHash.ReplaceAllString(line, "")
		isList := false
		if loc := listPrefix.FindStringIndex(line); loc != nil && !isHeading {
			isList = true
			line = line[loc[1]:]
		}
		wasBold := strings.HasPrefix(line, "**") && strings.HasSuffix(strings.TrimRight(line, ":"), "**")
		line = strings.TrimSpace(mdEmphasis.Replace(line))
		if line == "" {
			continue
		}

		if key, value, ok := splitKeyValue(line); ok {
			if sec, found := classifyHeading(key); found {
				current = sec
				if sec == sectionDescription {
					appendTo(sec, value)
				} else {
					for _, item := range splitItems(value) {
						appendTo(sec, item)
					}
				}
				continue
			}
		}

		if !isList && (isHeading || wasBold || looksLikeHeading(line)) {
			if sec, found := classifyHeading(line); found {
				current = sec
				continue
			}
			if isHeading || wasBold {
				// Unrelated heading such as the disease name.
				continue
			}
		}

		appendTo(current, line)
	}

	return domain.DiseaseInfo{
		Description: strings.Join(description, " "),
		Causes:      cleanList(lists[sectionCauses]),
		Symptoms:    cleanList(lists[sectionSymptoms]),
		Prevention:  cleanList(lists[sectionPrevention]),
		Treatment:   cleanList(lists[sectionTreatment]),
	}
}

// splitKeyValue splits "Key: value" lines whose key is short.
func splitKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" || value == "" || len(strings.Fields(key)) > 4 {
		return "", "", false
	}
	return key, value, true
}

// looksLikeHeading reports short lines without sentence punctuation.
func looksLikeHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasSuffix(trimmed, ":") {
		return len(strings.Fields(trimmed)) <= 6
	}
	if strings.ContainsAny(trimmed, ".!?") {
		return false
	}
	return len(strings.Fields(trimmed)) <= 4
}

// classifyHeading returns the section of the earliest keyword in s.
func classifyHeading(s string) (section, bool) {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		for _, entry := range sectionStems {
			for _, stem := range entry.stems {
				if exactWords[stem] {
					if word == stem || word == stem+"s" {
						return entry.section, true
					}
					continue
				}
				if strings.HasPrefix(word, stem) {
					return entry.section, true
				}
			}
		}
	}
	return sectionNone, false
}

// splitItems breaks an inline enumeration into list items.
func splitItems(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var parts []string
	switch {
	case strings.Contains(value, ";"):
		parts = strings.Split(value, ";")
	case strings.Count(value, ",") >= 1 && !strings.Contains(strings.TrimSuffix(value, "."), "."):
		parts = strings.Split(value, ",")
	default:
		parts = []string{value}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "and ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type keywordRule struct {
	keywords []string
	item     string
}

var (
	causeRules = []keywordRule{
		{[]string{"fungal", "fungus", "fungi"}, "Fungal infection"},
		{[]string{"bacteri"}, "Bacterial infection"},
		{[]string{"viral", "virus"}, "Viral infection"},
		{[]string{"weather"}, "Weather conditions"},
		{[]string{"moisture", "humid"}, "Excess moisture"},
	}
	symptomRules = []keywordRule{
		{[]string{"spots"}, "Dark spots on leaves"},
		{[]string{"yellow"}, "Yellowing of leaves"},
		{[]string{"wilting", "wilt"}, "Plant wilting"},
		{[]string{"lesion"}, "Lesions on plant tissue"},
	}
	preventionRules = []keywordRule{
		{[]string{"rotation"}, "Crop rotation"},
		{[]string{"fungicide"}, "Fungicide application"},
		{[]string{"spacing"}, "Proper plant spacing"},
		{[]string{"drainage"}, "Good drainage"},
		{[]string{"resistant"}, "Plant resistant varieties"},
	}
	treatmentRules = []keywordRule{
		{[]string{"fungicide"}, "Apply a registered fungicide"},
		{[]string{"copper", "bactericide"}, "Apply copper-based bactericide"},
		{[]string{"remove", "prune", "destroy"}, "Remove infected plant material"},
	}
)

func sweep(text string, rules []keywordRule, defaults ...string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, rule.item)
				break
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}

// SweepCauses infers causes from keywords, defaulting to environmental factors.
func SweepCauses(text string) []string {
	return sweep(text, causeRules, "Environmental factors")
}

// SweepSymptoms infers symptoms from keywords.
func SweepSymptoms(text string) []string {
	return sweep(text, symptomRules, "Visible damage to plant")
}

// SweepPrevention infers prevention measures from keywords.
func SweepPrevention(text string) []string {
	return sweep(text, preventionRules, "Good agricultural practices")
}

// SweepTreatment infers treatments from keywords.
func SweepTreatment(text string) []string {
	return sweep(text, treatmentRules, "Remove infected plants", "Consult local agricultural extension")
}

// Complete fills every empty field of info so all four lists are non-empty.
func Complete(info domain.DiseaseInfo, class string) domain.DiseaseInfo {
	out := info.Clone()
	if strings.TrimSpace(out.Description) == "" {
		out.Description = fmt.Sprintf("Information about %s disease", humanize(class))
	}
	corpus := strings.Join([]string{
		out.Description,
		strings.Join(out.Causes, ". "),
		strings.Join(out.Symptoms, ". "),
		strings.Join(out.Prevention, ". "),
		strings.Join(out.Treatment, ". "),
	}, ". ")
	if len(out.Causes) == 0 {
		out.Causes = SweepCauses(corpus)
	}
	if len(out.Symptoms) == 0 {
		out.Symptoms = SweepSymptoms(corpus)
	}
	if len(out.Prevention) == 0 {
		out.Prevention = SweepPrevention(corpus)
	}
	if len(out.Treatment) == 0 {
		out.Treatment = SweepTreatment(corpus)
	}
	if out.Source == "" {
		out.Source = SourceDefault
	}
	return out
}
