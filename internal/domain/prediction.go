package domain

// HealthyMarker is the class segment the model uses for healthy plants.
const HealthyMarker = "healthy"

// NormalizedPrediction is the canonical inference result, independent of the
// upstream model's raw schema.
type NormalizedPrediction struct {
	DiseaseClassRaw     string  `json:"diseaseClassRaw"`
	DiseaseClassDisplay string  `json:"diseaseClassDisplay"`
	CropName            string  `json:"cropName"`
	IsHealthy           bool    `json:"isHealthy"`
	Confidence          float64 `json:"confidence"`
	TopScore            float64 `json:"topScore"`
	TopClass            string  `json:"topClass,omitempty"`
	InferenceID         string  `json:"inferenceId,omitempty"`
	ImageWidth          int     `json:"imageWidth"`
	ImageHeight         int     `json:"imageHeight"`
}
