package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/H0onnn/InvokeAI/internal/domain"
	apperrors "github.com/H0onnn/InvokeAI/internal/errors"
)

func (s *Server) registerLayerRoutes() {
	s.echo.GET("/api/layers", s.handleListLayers)
	s.echo.POST("/api/layers", s.handleAddLayer)
	s.echo.GET("/api/layers/:id", s.handleGetLayer)
	s.echo.DELETE("/api/layers/:id", s.handleRemoveLayer)
	s.echo.PUT("/api/layers/:id/image", s.handleSetLayerImage)
	s.echo.DELETE("/api/layers/:id/image", s.handleClearLayerImage)
	s.echo.PUT("/api/layers/:id/processor", s.handleSetProcessorConfig)
	s.echo.PUT("/api/layers/:id/model", s.handleSetModel)

	s.echo.GET("/api/presets", s.handleListPresets)
	s.echo.POST("/api/presets", s.handleSavePreset)
	s.echo.POST("/api/presets/:id/recall", s.handleRecallPreset)
	s.echo.DELETE("/api/presets/:id", s.handleDeletePreset)
}

// layerResponse is the wire form of a layer. The processor config round-trips
// through its tagged envelope.
type layerResponse struct {
	ID             string           `json:"id"`
	Model          string           `json:"model,omitempty"`
	Image          *domain.ImageRef `json:"image,omitempty"`
	Processor      json.RawMessage  `json:"processor,omitempty"`
	ProcessedImage *domain.ImageDTO `json:"processed_image,omitempty"`
	PendingBatchID string           `json:"pending_batch_id,omitempty"`
}

func toLayerResponse(layer domain.ControlLayer) (layerResponse, error) {
	processor, err := domain.MarshalProcessorConfig(layer.Processor)
	if err != nil {
		return layerResponse{}, fmt.Errorf("encode processor config: %w", err)
	}
	if string(processor) == "null" {
		processor = nil
	}
	return layerResponse{
		ID:             layer.ID.String(),
		Model:          layer.Model,
		Image:          layer.Image,
		Processor:      processor,
		ProcessedImage: layer.ProcessedImage,
		PendingBatchID: layer.PendingBatchID,
	}, nil
}

func (s *Server) handleListLayers(c echo.Context) error {
	layers := s.store.Layers()

	responses := make([]layerResponse, 0, len(layers))
	for _, layer := range layers {
		resp, err := toLayerResponse(layer)
		if err != nil {
			return apperrors.InternalError("failed to encode layer", err)
		}
		responses = append(responses, resp)
	}

	if err := c.JSON(http.StatusOK, responses); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type addLayerRequest struct {
	Model     string           `json:"model"`
	Image     *domain.ImageRef `json:"image"`
	Processor json.RawMessage  `json:"processor"`
}

func (s *Server) handleAddLayer(c echo.Context) error {
	var req addLayerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	processor, err := domain.UnmarshalProcessorConfig(req.Processor)
	if err != nil {
		return apperrors.ValidationError("invalid processor config").WithContext("cause", err.Error())
	}

	layer := domain.ControlLayer{
		ID:        uuid.New(),
		Model:     req.Model,
		Image:     req.Image,
		Processor: processor,
	}
	s.store.Dispatch(domain.LayerAdded{Layer: layer})

	resp, err := toLayerResponse(layer)
	if err != nil {
		return apperrors.InternalError("failed to encode layer", err)
	}
	if err := c.JSON(http.StatusCreated, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetLayer(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	resp, err := toLayerResponse(*layer)
	if err != nil {
		return apperrors.InternalError("failed to encode layer", err)
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRemoveLayer(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	s.store.Dispatch(domain.LayerRemoved{LayerID: layer.ID})
	return c.NoContent(http.StatusNoContent)
}

type setImageRequest struct {
	ImageName string `json:"image_name"`
}

func (s *Server) handleSetLayerImage(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	var req setImageRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.ImageName == "" {
		return apperrors.ValidationError("image_name is required")
	}

	s.store.Dispatch(domain.LayerImageChanged{
		LayerID: layer.ID,
		Image:   &domain.ImageRef{ImageName: req.ImageName},
	})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearLayerImage(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	s.store.Dispatch(domain.LayerImageChanged{LayerID: layer.ID, Image: nil})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetProcessorConfig(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	var body json.RawMessage
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	processor, err := domain.UnmarshalProcessorConfig(body)
	if err != nil {
		return apperrors.ValidationError("invalid processor config").WithContext("cause", err.Error())
	}

	s.store.Dispatch(domain.ProcessorConfigChanged{LayerID: layer.ID, Config: processor})
	return c.NoContent(http.StatusNoContent)
}

type setModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleSetModel(c echo.Context) error {
	layer, appErr := s.layerFromParam(c)
	if appErr != nil {
		return appErr
	}

	var req setModelRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	s.store.Dispatch(domain.ModelChanged{LayerID: layer.ID, Model: req.Model})
	return c.NoContent(http.StatusNoContent)
}

// presetResponse is the wire form of a saved preset.
type presetResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Model     string           `json:"model,omitempty"`
	Image     *domain.ImageRef `json:"image,omitempty"`
	Processor json.RawMessage  `json:"processor,omitempty"`
}

func toPresetResponse(preset domain.LayerPreset) (presetResponse, error) {
	processor, err := domain.MarshalProcessorConfig(preset.Processor)
	if err != nil {
		return presetResponse{}, fmt.Errorf("encode processor config: %w", err)
	}
	if string(processor) == "null" {
		processor = nil
	}
	return presetResponse{
		ID:        preset.ID.String(),
		Name:      preset.Name,
		Model:     preset.Model,
		Image:     preset.Image,
		Processor: processor,
	}, nil
}

func (s *Server) handleListPresets(c echo.Context) error {
	presets, err := s.presets.List(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list presets", err)
	}

	responses := make([]presetResponse, 0, len(presets))
	for _, preset := range presets {
		resp, err := toPresetResponse(preset)
		if err != nil {
			return apperrors.InternalError("failed to encode preset", err)
		}
		responses = append(responses, resp)
	}

	if err := c.JSON(http.StatusOK, responses); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type savePresetRequest struct {
	Name    string `json:"name"`
	LayerID string `json:"layer_id"`
}

// handleSavePreset snapshots a layer's recallable settings under a name.
func (s *Server) handleSavePreset(c echo.Context) error {
	var req savePresetRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Name == "" {
		return apperrors.ValidationError("name is required")
	}

	layerID, err := uuid.Parse(req.LayerID)
	if err != nil {
		return apperrors.ValidationError("invalid layer id").WithContext("layer_id", req.LayerID)
	}

	layer, ok := s.store.Layer(layerID)
	if !ok {
		return apperrors.NotFoundError("layer not found").WithContext("layer_id", layerID.String())
	}

	preset := domain.LayerPreset{
		ID:        uuid.New(),
		Name:      req.Name,
		Model:     layer.Model,
		Image:     layer.Image,
		Processor: layer.Processor,
	}
	if err := s.presets.Save(c.Request().Context(), preset); err != nil {
		return apperrors.InternalError("failed to save preset", err).WithContext("preset_name", req.Name)
	}

	resp, err := toPresetResponse(preset)
	if err != nil {
		return apperrors.InternalError("failed to encode preset", err)
	}
	if err := c.JSON(http.StatusCreated, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type recallPresetRequest struct {
	LayerID string `json:"layer_id"`
}

// handleRecallPreset restores a preset onto a layer. With no layer_id a new
// layer is created; either way a recall event fires and the effect reacts.
func (s *Server) handleRecallPreset(c echo.Context) error {
	presetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid preset id").WithContext("id", c.Param("id"))
	}

	var req recallPresetRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	layerID := uuid.New()
	if req.LayerID != "" {
		layerID, err = uuid.Parse(req.LayerID)
		if err != nil {
			return apperrors.ValidationError("invalid layer id").WithContext("layer_id", req.LayerID)
		}
	}

	preset, err := s.presets.Get(c.Request().Context(), presetID)
	if errors.Is(err, domain.ErrPresetNotFound) {
		return apperrors.NotFoundError("preset not found").WithContext("preset_id", presetID.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to load preset", err).WithContext("preset_id", presetID.String())
	}

	layer := domain.ControlLayer{
		ID:        layerID,
		Model:     preset.Model,
		Image:     preset.Image,
		Processor: preset.Processor,
	}
	s.store.Dispatch(domain.LayerRecalled{Layer: layer})

	resp, err := toLayerResponse(layer)
	if err != nil {
		return apperrors.InternalError("failed to encode layer", err)
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDeletePreset(c echo.Context) error {
	presetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid preset id").WithContext("id", c.Param("id"))
	}

	err = s.presets.Delete(c.Request().Context(), presetID)
	if errors.Is(err, domain.ErrPresetNotFound) {
		return apperrors.NotFoundError("preset not found").WithContext("preset_id", presetID.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to delete preset", err).WithContext("preset_id", presetID.String())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) layerFromParam(c echo.Context) (*domain.ControlLayer, error) {
	layerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, apperrors.ValidationError("invalid layer id").WithContext("id", c.Param("id"))
	}

	layer, ok := s.store.Layer(layerID)
	if !ok {
		return nil, apperrors.NotFoundError("layer not found").WithContext("layer_id", layerID.String())
	}
	return &layer, nil
}
