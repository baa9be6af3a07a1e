package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"place-client/internal/logging"
)

type RoomConfig struct {
	Name             string
	Description      *string
	CanvasDimensions int
}

type roomConfigResponse struct {
	Metadata struct {
		Name             string  `json:"name"`
		Description      *string `json:"description"`
		CanvasDimensions int     `json:"canvasDimensions"`
	} `json:"metadata"`
}

type canvasResponse struct {
	Pixels string `json:"pixels"`
}

func (c *PlaceClient) FetchRoomConfig(ctx context.Context, slug string) (RoomConfig, error) {
	data, err := c.getJSON(ctx, "/rooms/"+url.PathEscape(slug)+"/config")
	if err != nil {
		return RoomConfig{}, err
	}
	var decoded roomConfigResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		c.logger.Warn("invalid room config JSON",
			logging.Field("room", slug),
			logging.Field("error", err),
			logging.Field("response", logging.FormatHTTPPayload(data)),
		)
		return RoomConfig{}, fmt.Errorf("decode room config: %w", err)
	}
	cfg := RoomConfig{
		Name:             decoded.Metadata.Name,
		Description:      decoded.Metadata.Description,
		CanvasDimensions: decoded.Metadata.CanvasDimensions,
	}
	c.logger.Debug("room config loaded",
		logging.Field("room", slug),
		logging.Field("dimensions", cfg.CanvasDimensions),
	)
	return cfg, nil
}

// FetchCanvas returns the packed pixel string of the room.
func (c *PlaceClient) FetchCanvas(ctx context.Context, slug string) (string, error) {
	data, err := c.getJSON(ctx, "/rooms/"+url.PathEscape(slug)+"/canvas")
	if err != nil {
		return "", err
	}
	var decoded canvasResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decode canvas: %w", err)
	}
	return decoded.Pixels, nil
}

func (c *PlaceClient) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	result := c.Request(ctx, endpoint, RequestOptions{})
	if result.Outcome != Delivered {
		return nil, result.Err
	}
	if !result.Response.OK() {
		return nil, &HTTPStatusError{StatusCode: result.Response.StatusCode, Status: result.Response.Status}
	}
	return result.Response.Body, nil
}
