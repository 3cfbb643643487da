// Package prediction turns raw inference payloads into canonical predictions.
package prediction

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"agrinix/internal/domain"
)

// Kind tags the outcome of Normalize.
type Kind int

const (
	KindOK Kind = iota
	KindEmpty
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindEmpty:
		return "empty"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// User-facing messages for negative outcomes.
const (
	MessageCouldNotPredict = "Oops! Our model could not predict this. Please try again with a clearer image"
	MessageNoPrediction    = "No disease prediction found. Please try again with a clearer image"
)

const defaultConfidence = 1.0

// Result is either a prediction (KindOK) or a user-facing message.
type Result struct {
	Kind       Kind
	Prediction *domain.NormalizedPrediction
	Message    string
}

// Normalize interprets raw. It never panics and is deterministic: equal input
// yields an equal Result.
func Normalize(raw json.RawMessage) Result {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return Result{Kind: KindMalformed, Message: MessageCouldNotPredict}
	}
	doc, ok := root.(map[string]any)
	if !ok {
		return Result{Kind: KindMalformed, Message: MessageCouldNotPredict}
	}

	outputsValue, present := doc["outputs"]
	if !present {
		// Some gateways wrap the workflow body in {"response": {...}}.
		if inner, ok := doc["response"].(map[string]any); ok {
			outputsValue = inner["outputs"]
		}
	}
	outputs, ok := outputsValue.([]any)
	if !ok || len(outputs) == 0 {
		return Result{Kind: KindEmpty, Message: MessageCouldNotPredict}
	}

	first, _ := outputs[0].(map[string]any)
	model, _ := first["model_prediction_output"].(map[string]any)
	candidates, _ := model["predictions"].([]any)
	var candidate map[string]any
	var class string
	for _, c := range candidates {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if name := strings.TrimSpace(asString(obj["class"])); name != "" {
			candidate, class = obj, name
			break
		}
	}
	if candidate == nil {
		return Result{Kind: KindEmpty, Message: MessageNoPrediction}
	}

	p := Split(class)
	p.Confidence = confidence(model["confidence"])
	p.TopScore = score(candidate["confidence"])
	p.TopClass = asString(model["top"])
	p.InferenceID = asString(model["inference_id"])
	image, _ := model["image"].(map[string]any)
	p.ImageWidth = dimension(image["width"])
	p.ImageHeight = dimension(image["height"])
	return Result{Kind: KindOK, Prediction: &p}
}

// Split derives crop and health fields from a raw class label such as
// "potato_early_blight" or "healthy_tomato". The healthy marker is matched
// exactly, so "Healthy_tomato" is a crop named Healthy.
func Split(class string) domain.NormalizedPrediction {
	head, rest, hasRest := strings.Cut(class, "_")
	display := upperFirst(head)
	if hasRest {
		display += "_" + rest
	}

	p := domain.NormalizedPrediction{
		DiseaseClassRaw:     class,
		DiseaseClassDisplay: display,
	}
	switch {
	case head == domain.HealthyMarker:
		p.IsHealthy = true
		crop, _, _ := strings.Cut(rest, "_")
		p.CropName = upperFirst(crop)
	case hasRest && rest == domain.HealthyMarker:
		p.IsHealthy = true
		p.CropName = upperFirst(head)
	default:
		p.CropName = upperFirst(head)
	}
	if p.CropName == "" {
		p.CropName = "Unknown"
	}
	return p
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func confidence(v any) float64 {
	f, ok := asFloat(v)
	if !ok || f < 0 || f > 1 {
		return defaultConfidence
	}
	return f
}

func score(v any) float64 {
	f, ok := asFloat(v)
	if !ok || f < 0 || f > 1 {
		return 0
	}
	return f
}

func dimension(v any) int {
	f, ok := asFloat(v)
	if !ok || f < 0 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}
