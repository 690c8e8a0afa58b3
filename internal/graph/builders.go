// Package graph builds single-node compute graphs for processor kinds.
package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/H0onnn/InvokeAI/internal/domain"
)

// BuildProcessorNode maps a processor config onto the backend node for its
// kind. The node is marked intermediate so its output never lands in the
// permanent gallery.
func BuildProcessorNode(cfg domain.ProcessorConfig, image domain.ImageRef) (domain.GraphNode, error) {
	params, err := nodeParams(cfg)
	if err != nil {
		return domain.GraphNode{}, err
	}

	return domain.GraphNode{
		ID:             string(cfg.Kind()) + "_" + uuid.NewString(),
		Type:           string(cfg.Kind()),
		IsIntermediate: true,
		Image:          &image,
		Params:         params,
	}, nil
}

// BuildPreprocessGraph wraps a processor node in a one-node graph ready for
// batch submission.
func BuildPreprocessGraph(cfg domain.ProcessorConfig, image domain.ImageRef) (domain.Graph, domain.GraphNode, error) {
	node, err := BuildProcessorNode(cfg, image)
	if err != nil {
		return domain.Graph{}, domain.GraphNode{}, err
	}

	g := domain.Graph{
		ID:    uuid.NewString(),
		Nodes: map[string]domain.GraphNode{node.ID: node},
		Edges: []domain.GraphEdge{},
	}
	return g, node, nil
}

func nodeParams(cfg domain.ProcessorConfig) (map[string]any, error) {
	switch c := cfg.(type) {
	case domain.CannyConfig:
		return map[string]any{
			"low_threshold":    c.LowThreshold,
			"high_threshold":   c.HighThreshold,
			"image_resolution": c.ImageResolution,
		}, nil

	case domain.ColorMapConfig:
		return map[string]any{
			"color_map_tile_size": c.TileSize,
		}, nil

	case domain.ContentShuffleConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
			"w":                 c.W,
			"h":                 c.H,
			"f":                 c.F,
		}, nil

	case domain.DepthAnythingConfig:
		return map[string]any{
			"model_size": c.ModelSize,
			"resolution": c.Resolution,
		}, nil

	case domain.HEDConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
			"scribble":          c.Scribble,
		}, nil

	case domain.LineartConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
			"coarse":            c.Coarse,
		}, nil

	case domain.LineartAnimeConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
		}, nil

	case domain.MediapipeFaceConfig:
		return map[string]any{
			"max_faces":      c.MaxFaces,
			"min_confidence": c.MinConfidence,
		}, nil

	case domain.MidasDepthConfig:
		return map[string]any{
			"a_mult": c.AMult,
			"bg_th":  c.BgThr,
		}, nil

	case domain.MLSDConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
			"thr_v":             c.ThrV,
			"thr_d":             c.ThrD,
		}, nil

	case domain.NormalBaeConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
		}, nil

	case domain.PidiConfig:
		return map[string]any{
			"image_resolution":  c.ImageResolution,
			"detect_resolution": c.DetectResolution,
			"safe":              c.Safe,
			"scribble":          c.Scribble,
		}, nil

	case domain.ZoeDepthConfig:
		return map[string]any{}, nil

	case domain.DWOpenposeConfig:
		return map[string]any{
			"draw_body":        c.DrawBody,
			"draw_face":        c.DrawFace,
			"draw_hands":       c.DrawHands,
			"image_resolution": c.ImageResolution,
		}, nil

	default:
		return nil, fmt.Errorf("no node builder for processor kind %q", cfg.Kind())
	}
}
