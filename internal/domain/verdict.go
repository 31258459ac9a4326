package domain

// Region is a detection bounding box in pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one label reported by the content-safety classifier.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Region     *Region `json:"region,omitempty"`
}

// Verdict is the outcome of a moderation check.
// Detections lists only the labels that made the image unsafe, in the order
// the classifier reported them. Scores holds every raw label score.
type Verdict struct {
	IsSafe     bool               `json:"is_safe"`
	Message    string             `json:"message"`
	Detections []Detection        `json:"detections"`
	Scores     map[string]float64 `json:"confidence_scores"`
	Error      string             `json:"error,omitempty"`
}

// Labels returns the triggering labels in order.
func (v Verdict) Labels() []string {
	labels := make([]string, 0, len(v.Detections))
	for _, d := range v.Detections {
		labels = append(labels, d.Label)
	}
	return labels
}
