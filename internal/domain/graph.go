package domain

import (
	"encoding/json"
	"fmt"
)

// GraphNode is a single node of a compute graph in the backend's wire format.
// Kind-specific parameters live in Params and are flattened into the node
// object on the wire.
type GraphNode struct {
	ID             string
	Type           string
	IsIntermediate bool
	Image          *ImageRef
	Params         map[string]any
}

func (n GraphNode) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(n.Params)+4)
	for k, v := range n.Params {
		obj[k] = v
	}
	obj["id"] = n.ID
	obj["type"] = n.Type
	obj["is_intermediate"] = n.IsIntermediate
	if n.Image != nil {
		obj["image"] = n.Image
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal graph node %s: %w", n.ID, err)
	}
	return data, nil
}

// GraphEdge connects two node fields. The auto-preprocess graph has none,
// but the wire format requires the field.
type GraphEdge struct {
	Source GraphEdgeEndpoint `json:"source"`
	Dest   GraphEdgeEndpoint `json:"destination"`
}

type GraphEdgeEndpoint struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
}

// Graph is a compute graph submitted to the backend queue.
type Graph struct {
	ID    string               `json:"id"`
	Nodes map[string]GraphNode `json:"nodes"`
	Edges []GraphEdge          `json:"edges"`
}

// Batch is a graph plus run count, submitted as one queue entry.
type Batch struct {
	Graph Graph `json:"graph"`
	Runs  int   `json:"runs"`
}

// EnqueueResult is the backend's answer to a batch submission.
type EnqueueResult struct {
	BatchID  string `json:"batch_id"`
	Enqueued int    `json:"enqueued"`
}

// InvocationResult is the typed output payload of a completed invocation.
type InvocationResult struct {
	Type  string    `json:"type"`
	Image *ImageRef `json:"image,omitempty"`
}

// ResultTypeImage marks an image-typed invocation result.
const ResultTypeImage = "image_output"

// InvocationCompleteEvent is delivered over the backend push channel when a
// queue item's node finishes executing.
type InvocationCompleteEvent struct {
	QueueBatchID string           `json:"queue_batch_id"`
	SourceNodeID string           `json:"source_node_id"`
	Result       InvocationResult `json:"result"`
}
