package tree

import (
	"bytes"
	"encoding/json"
)

// rawNode mirrors the wire shape of one node in the source document. Size
// is a pointer so a missing field is distinguishable from an explicit zero,
// and uses json.Number so fractional or negative values can be rejected by
// the loader rather than silently truncated by the decoder.
type rawNode struct {
	Type     string       `json:"type"`
	Name     string       `json:"name"`
	Size     *json.Number `json:"size"`
	Contents []rawNode    `json:"contents"`
}

// parseDocument decodes the raw bytes into the top-level sequence of nodes.
// A document whose top level is not a JSON array is rejected outright.
func parseDocument(data []byte) ([]rawNode, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var nodes []rawNode
	if err := dec.Decode(&nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}
