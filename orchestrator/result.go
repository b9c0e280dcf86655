package orchestrator

// Document is one converted or chunked document within a Result.
type Document struct {
	Filename string                 `json:"filename"`
	Content  string                 `json:"content,omitempty"`
	Chunks   []string               `json:"chunks,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Result is the delivered output of a successfully completed Task.
// Its shape is dictated by the Task's Target: for in-body delivery
// Documents is populated directly; for zip/presigned-PUT/object-store
// targets, DeliveryRef names where the payload was written and
// Documents may be empty.
type Result struct {
	Documents   []Document `json:"documents,omitempty"`
	DeliveryRef string     `json:"delivery_ref,omitempty"`
}
