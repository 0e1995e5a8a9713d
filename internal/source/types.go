package source

// RawSample is one metric sample line of an exported JSONL file.
type RawSample struct {
	Timestamp  string            `json:"timestamp"`
	Metric     string            `json:"metric"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Value      *float64          `json:"value"`
	Unit       string            `json:"unit,omitempty"`
}

// RawInvocation is one Bedrock model invocation log record.
type RawInvocation struct {
	SchemaType string       `json:"schemaType"`
	Timestamp  string       `json:"timestamp"`
	RequestID  string       `json:"requestId"`
	ModelID    string       `json:"modelId"`
	Operation  string       `json:"operation,omitempty"`
	ErrorCode  string       `json:"errorCode,omitempty"`
	Identity   *RawIdentity `json:"identity,omitempty"`
	Input      *RawIO       `json:"input,omitempty"`
	Output     *RawIO       `json:"output,omitempty"`
}

// RawIdentity is the caller of an invocation.
type RawIdentity struct {
	ARN string `json:"arn"`
}

// RawIO holds the token count of a request or response body.
type RawIO struct {
	InputTokenCount  int64 `json:"inputTokenCount,omitempty"`
	OutputTokenCount int64 `json:"outputTokenCount,omitempty"`
}

// DiscoveredFile represents a JSONL file found during directory scanning.
type DiscoveredFile struct {
	Path string
	Rel  string // path relative to the scanned root
}
