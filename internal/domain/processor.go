package domain

import (
	"encoding/json"
	"fmt"
)

// ProcessorKind identifies a preprocessor node type on the backend.
type ProcessorKind string

const (
	KindCanny          ProcessorKind = "canny_image_processor"
	KindColorMap       ProcessorKind = "color_map_image_processor"
	KindContentShuffle ProcessorKind = "content_shuffle_image_processor"
	KindDepthAnything  ProcessorKind = "depth_anything_image_processor"
	KindHED            ProcessorKind = "hed_image_processor"
	KindLineart        ProcessorKind = "lineart_image_processor"
	KindLineartAnime   ProcessorKind = "lineart_anime_image_processor"
	KindMediapipeFace  ProcessorKind = "mediapipe_face_processor"
	KindMidasDepth     ProcessorKind = "midas_depth_image_processor"
	KindMLSD           ProcessorKind = "mlsd_image_processor"
	KindNormalBae      ProcessorKind = "normalbae_image_processor"
	KindPidi           ProcessorKind = "pidi_image_processor"
	KindZoeDepth       ProcessorKind = "zoe_depth_image_processor"
	KindDWOpenpose     ProcessorKind = "dw_openpose_image_processor"
)

// ProcessorConfig is a processor parameter set tagged by kind. Configs are
// immutable values: replacing a layer's config goes through a store event.
type ProcessorConfig interface {
	Kind() ProcessorKind
}

type CannyConfig struct {
	LowThreshold    int `json:"low_threshold"`
	HighThreshold   int `json:"high_threshold"`
	ImageResolution int `json:"image_resolution"`
}

func (CannyConfig) Kind() ProcessorKind { return KindCanny }

type ColorMapConfig struct {
	TileSize int `json:"color_map_tile_size"`
}

func (ColorMapConfig) Kind() ProcessorKind { return KindColorMap }

type ContentShuffleConfig struct {
	ImageResolution  int `json:"image_resolution"`
	DetectResolution int `json:"detect_resolution"`
	W                int `json:"w"`
	H                int `json:"h"`
	F                int `json:"f"`
}

func (ContentShuffleConfig) Kind() ProcessorKind { return KindContentShuffle }

type DepthAnythingConfig struct {
	ModelSize  string `json:"model_size"`
	Resolution int    `json:"resolution"`
}

func (DepthAnythingConfig) Kind() ProcessorKind { return KindDepthAnything }

type HEDConfig struct {
	ImageResolution  int  `json:"image_resolution"`
	DetectResolution int  `json:"detect_resolution"`
	Scribble         bool `json:"scribble"`
}

func (HEDConfig) Kind() ProcessorKind { return KindHED }

type LineartConfig struct {
	ImageResolution  int  `json:"image_resolution"`
	DetectResolution int  `json:"detect_resolution"`
	Coarse           bool `json:"coarse"`
}

func (LineartConfig) Kind() ProcessorKind { return KindLineart }

type LineartAnimeConfig struct {
	ImageResolution  int `json:"image_resolution"`
	DetectResolution int `json:"detect_resolution"`
}

func (LineartAnimeConfig) Kind() ProcessorKind { return KindLineartAnime }

type MediapipeFaceConfig struct {
	MaxFaces      int     `json:"max_faces"`
	MinConfidence float64 `json:"min_confidence"`
}

func (MediapipeFaceConfig) Kind() ProcessorKind { return KindMediapipeFace }

type MidasDepthConfig struct {
	AMult float64 `json:"a_mult"`
	BgThr float64 `json:"bg_th"`
}

func (MidasDepthConfig) Kind() ProcessorKind { return KindMidasDepth }

type MLSDConfig struct {
	ImageResolution  int     `json:"image_resolution"`
	DetectResolution int     `json:"detect_resolution"`
	ThrV             float64 `json:"thr_v"`
	ThrD             float64 `json:"thr_d"`
}

func (MLSDConfig) Kind() ProcessorKind { return KindMLSD }

type NormalBaeConfig struct {
	ImageResolution  int `json:"image_resolution"`
	DetectResolution int `json:"detect_resolution"`
}

func (NormalBaeConfig) Kind() ProcessorKind { return KindNormalBae }

type PidiConfig struct {
	ImageResolution  int  `json:"image_resolution"`
	DetectResolution int  `json:"detect_resolution"`
	Safe             bool `json:"safe"`
	Scribble         bool `json:"scribble"`
}

func (PidiConfig) Kind() ProcessorKind { return KindPidi }

type ZoeDepthConfig struct{}

func (ZoeDepthConfig) Kind() ProcessorKind { return KindZoeDepth }

type DWOpenposeConfig struct {
	DrawBody        bool `json:"draw_body"`
	DrawFace        bool `json:"draw_face"`
	DrawHands       bool `json:"draw_hands"`
	ImageResolution int  `json:"image_resolution"`
}

func (DWOpenposeConfig) Kind() ProcessorKind { return KindDWOpenpose }

// processorEnvelope is the wire/storage form of a ProcessorConfig.
type processorEnvelope struct {
	Kind   ProcessorKind   `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// MarshalProcessorConfig encodes a config into a kind-tagged JSON envelope.
func MarshalProcessorConfig(cfg ProcessorConfig) ([]byte, error) {
	if cfg == nil {
		return []byte("null"), nil
	}
	params, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal processor params: %w", err)
	}
	data, err := json.Marshal(processorEnvelope{Kind: cfg.Kind(), Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal processor envelope: %w", err)
	}
	return data, nil
}

// UnmarshalProcessorConfig decodes a kind-tagged JSON envelope into the
// concrete config type for its kind.
func UnmarshalProcessorConfig(data []byte) (ProcessorConfig, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var env processorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal processor envelope: %w", err)
	}

	var cfg ProcessorConfig
	switch env.Kind {
	case KindCanny:
		cfg = &CannyConfig{}
	case KindColorMap:
		cfg = &ColorMapConfig{}
	case KindContentShuffle:
		cfg = &ContentShuffleConfig{}
	case KindDepthAnything:
		cfg = &DepthAnythingConfig{}
	case KindHED:
		cfg = &HEDConfig{}
	case KindLineart:
		cfg = &LineartConfig{}
	case KindLineartAnime:
		cfg = &LineartAnimeConfig{}
	case KindMediapipeFace:
		cfg = &MediapipeFaceConfig{}
	case KindMidasDepth:
		cfg = &MidasDepthConfig{}
	case KindMLSD:
		cfg = &MLSDConfig{}
	case KindNormalBae:
		cfg = &NormalBaeConfig{}
	case KindPidi:
		cfg = &PidiConfig{}
	case KindZoeDepth:
		cfg = &ZoeDepthConfig{}
	case KindDWOpenpose:
		cfg = &DWOpenposeConfig{}
	default:
		return nil, fmt.Errorf("unknown processor kind %q", env.Kind)
	}

	if len(env.Params) > 0 {
		if err := json.Unmarshal(env.Params, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal %s params: %w", env.Kind, err)
		}
	}
	return deref(cfg), nil
}

// deref returns the value form so configs compare by value in tests and the
// reducer stores plain values.
func deref(cfg ProcessorConfig) ProcessorConfig {
	switch c := cfg.(type) {
	case *CannyConfig:
		return *c
	case *ColorMapConfig:
		return *c
	case *ContentShuffleConfig:
		return *c
	case *DepthAnythingConfig:
		return *c
	case *HEDConfig:
		return *c
	case *LineartConfig:
		return *c
	case *LineartAnimeConfig:
		return *c
	case *MediapipeFaceConfig:
		return *c
	case *MidasDepthConfig:
		return *c
	case *MLSDConfig:
		return *c
	case *NormalBaeConfig:
		return *c
	case *PidiConfig:
		return *c
	case *ZoeDepthConfig:
		return *c
	case *DWOpenposeConfig:
		return *c
	default:
		return cfg
	}
}
