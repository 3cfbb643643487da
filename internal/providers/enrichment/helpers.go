package enrichment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"agrinix/internal/domain"
)

// ErrMissingAPIKey is returned by remote providers without credentials.
var ErrMissingAPIKey = errors.New("enrichment: api key is required")

const systemPrompt = "You are an agricultural plant pathology assistant that only responds with valid JSON."

// modelDiseasePayload is the JSON object generative providers are asked for.
type modelDiseasePayload struct {
	Description string     `json:"description"`
	Causes      stringList `json:"causes"`
	Symptoms    stringList `json:"symptoms"`
	Prevention  stringList `json:"prevention"`
	Treatment   stringList `json:"treatment"`
}

// stringList accepts a JSON array or a single string.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				out = append(out, v)
			case nil:
			default:
				out = append(out, fmt.Sprint(v))
			}
		}
		*s = out
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = splitItems(single)
		return nil
	}
	*s = nil
	return nil
}

const askSystemPrompt = "You are an agricultural plant pathology assistant. Answer farmers' questions about crop diseases and plant care in plain language, briefly and practically."

func buildQuestionPrompt(question, class string) string {
	question = strings.TrimSpace(question)
	if class = strings.TrimSpace(class); class == "" {
		return question
	}
	return fmt.Sprintf("The crop was diagnosed with %s.\n\n%s", humanize(class), question)
}

func buildDiseasePrompt(class string) string {
	return fmt.Sprintf(`Provide information about the crop disease %q.
Respond with one JSON object with these keys:
"description": a short paragraph,
"causes": list of strings,
"symptoms": list of strings,
"prevention": list of strings,
"treatment": list of strings.`, humanize(class))
}

// interpretReply turns a model reply into DiseaseInfo. A reply holding a JSON
// object is decoded strictly; anything else goes through the text extractor.
func interpretReply(text, source string) (*domain.DiseaseInfo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoContent
	}
	if parsed, err := parseModelPayload[modelDiseasePayload](text); err == nil {
		info := &domain.DiseaseInfo{
			Description: strings.TrimSpace(parsed.Description),
			Causes:      cleanList(parsed.Causes),
			Symptoms:    cleanList(parsed.Symptoms),
			Prevention:  cleanList(parsed.Prevention),
			Treatment:   cleanList(parsed.Treatment),
			Source:      source,
		}
		if info.Empty() {
			return nil, ErrNoContent
		}
		return info, nil
	}
	info := ExtractText(text)
	if info.Empty() {
		return nil, ErrNoContent
	}
	info.Source = source
	return &info, nil
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" || !strings.HasPrefix(cleaned, "{") {
		return zero, errors.New("no json object in payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// humanize renders a class label as a readable title: "potato_early_blight"
// becomes "Potato Early Blight".
func humanize(class string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(class))
	if len(words) == 0 {
		return "Unknown"
	}
	return cases.Title(language.English).String(strings.ToLower(strings.Join(words, " ")))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(strings.Trim(strings.TrimSpace(item), "-*•.;,"))
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
