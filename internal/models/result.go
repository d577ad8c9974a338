package models

type UploadResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	Kind   string `json:"kind"`
}

type ResultResponse struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Result *AnalysisResult `json:"result"`
}

type SimilarCandidate struct {
	ID    string  `json:"id"`
	Score float32 `json:"similarity"`
	Kind  string  `json:"source"`
	File  string  `json:"file"`
}

type SimilarResponse struct {
	ID         string             `json:"id"`
	Candidates []SimilarCandidate `json:"candidates"`
}
