package report

import (
	"encoding/json"
	"fmt"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// Marshal encodes a report as indented JSON.
func Marshal(r model.Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a report produced by Marshal.
func Unmarshal(data []byte) (model.Report, error) {
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return model.Report{}, fmt.Errorf("decoding report: %w", err)
	}
	return r, nil
}
