package dataset

type Prediction struct {
	Status bool    `json:"Status"`
	Score  float64 `json:"Score"`
	Sample Sample  `json:"Sample"`
}

type GroundTruth struct {
	Sample Sample `json:"Sample"`
}

type GroundTruthAndPredictions struct {
	GroundTruth GroundTruth  `json:"GroundTruth"`
	Predictions []Prediction `json:"Predictions"`
}

// EvaluationResult keeps the historical "RecallIntervalls" spelling, files in the wild use it.
type EvaluationResult struct {
	Info              DatasetInfo                 `json:"Info"`
	Radius            float64                     `json:"Radius"`
	RecallIntervalls  []int                       `json:"RecallIntervalls"`
	RecallCounts      []int                       `json:"RecallCounts"`
	RecallPercentages []float64                   `json:"RecallPercentages"`
	PredictionPairs   []GroundTruthAndPredictions `json:"PredictionPairs"`
}
