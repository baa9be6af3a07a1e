package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.IO v4 packet types, with the Socket.IO v5 packet type as the second
// character of message packets.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'

	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

var (
	connectFrame    = []byte{engineMessage, socketConnect}
	disconnectFrame = []byte{engineMessage, socketDisconnect}
	pongFrame       = []byte{enginePong}
)

type packetKind int

const (
	packetUnknown packetKind = iota
	packetOpen
	packetClose
	packetPing
	packetPong
	packetConnect
	packetDisconnect
	packetEvent
	packetConnectError
)

type packet struct {
	kind    packetKind
	event   string
	args    []json.RawMessage
	payload json.RawMessage
}

type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

func (p openPayload) liveness() time.Duration {
	interval := time.Duration(p.PingInterval) * time.Millisecond
	timeout := time.Duration(p.PingTimeout) * time.Millisecond
	if interval <= 0 {
		interval = 25 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return interval + timeout
}

var errEmptyFrame = errors.New("empty frame")

func parsePacket(frame []byte) (packet, error) {
	if len(frame) == 0 {
		return packet{}, errEmptyFrame
	}
	body := frame[1:]
	switch frame[0] {
	case engineOpen:
		return packet{kind: packetOpen, payload: json.RawMessage(body)}, nil
	case engineClose:
		return packet{kind: packetClose}, nil
	case enginePing:
		return packet{kind: packetPing}, nil
	case enginePong:
		return packet{kind: packetPong}, nil
	case engineMessage:
		return parseSocketPacket(body)
	default:
		return packet{kind: packetUnknown}, nil
	}
}

func parseSocketPacket(body []byte) (packet, error) {
	if len(body) == 0 {
		return packet{}, errEmptyFrame
	}
	kind := body[0]
	rest := skipNamespace(body[1:])
	switch kind {
	case socketConnect:
		return packet{kind: packetConnect, payload: json.RawMessage(rest)}, nil
	case socketDisconnect:
		return packet{kind: packetDisconnect}, nil
	case socketConnectError:
		return packet{kind: packetConnectError, payload: json.RawMessage(rest)}, nil
	case socketEvent:
		rest = bytes.TrimLeft(rest, "0123456789")
		var items []json.RawMessage
		if err := json.Unmarshal(rest, &items); err != nil {
			return packet{}, fmt.Errorf("decode event packet: %w", err)
		}
		if len(items) == 0 {
			return packet{}, errors.New("event packet without a name")
		}
		var name string
		if err := json.Unmarshal(items[0], &name); err != nil {
			return packet{}, fmt.Errorf("decode event name: %w", err)
		}
		return packet{kind: packetEvent, event: name, args: items[1:]}, nil
	default:
		return packet{kind: packetUnknown}, nil
	}
}

// skipNamespace drops a leading "/nsp," from a socket packet body.
func skipNamespace(body []byte) []byte {
	if len(body) == 0 || body[0] != '/' {
		return body
	}
	if idx := bytes.IndexByte(body, ','); idx >= 0 {
		return body[idx+1:]
	}
	return nil
}

func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal([]any{event, payload})
	if err != nil {
		return nil, err
	}
	return append([]byte{engineMessage, socketEvent}, data...), nil
}

// connectErrorMessage extracts the message of a CONNECT_ERROR payload, which
// is either {"message": "..."} or a bare string.
func connectErrorMessage(payload json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Message != "" {
		return body.Message
	}
	var text string
	if json.Unmarshal(payload, &text) == nil && text != "" {
		return text
	}
	return string(bytes.TrimSpace(payload))
}
