package streams

import "encoding/json"

const (
	MessageEvent     = "message"
	PixelUpdateEvent = "pixel-update"

	methodSubscription = "subscription"
	resultStarted      = "started"

	CanvasStreamPath = "rooms.canvas.getStream"
	ChatStreamPath   = "rooms.getChat"
)

type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params Params `json:"params"`
}

type Params struct {
	Path  string `json:"path"`
	Input Input  `json:"input"`
}

type Input struct {
	JSON any `json:"json"`
}

type RoomInput struct {
	RoomSlug string `json:"roomSlug"`
}

// Ack is any reply on the message channel; only those whose ID matches a
// pending request are acknowledgments.
type Ack struct {
	ID     string `json:"id"`
	Result struct {
		Type string `json:"type"`
	} `json:"result"`
}

type PixelUpdate struct {
	RoomSlug string `json:"roomSlug"`
	Color    int    `json:"color"`
	PosX     int    `json:"posX"`
	PosY     int    `json:"posY"`
}

type pixelUpdateEnvelope struct {
	Result struct {
		Data struct {
			JSON PixelUpdate `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

func decodePixelUpdate(payload json.RawMessage) (PixelUpdate, error) {
	var envelope pixelUpdateEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return PixelUpdate{}, err
	}
	return envelope.Result.Data.JSON, nil
}
