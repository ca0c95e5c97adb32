package cmds

type ProcessImageRequest struct {
	// base64 of the raw little-endian float32 1x3x512x512 tensor
	Image   string   `json:"image"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	Regions []string `json:"regions,omitempty"`
	HnswEf  uint64   `json:"hnsw_ef,omitempty"`
	Exact   bool     `json:"exact,omitempty"`
}

type SearchHit struct {
	Id      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type ProcessImageResponse struct {
	Result []*SearchHit `json:"result"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ClientError marks failures caused by the request itself, served as 400.
type ClientError struct {
	Detail string
}

func (e *ClientError) Error() string {
	return e.Detail
}
