// Package stream manages the single multiplexed websocket connection to
// the tile server: slot lifecycle (open/update/close), coalesced viewport
// updates, tile payload delivery and reconnect replay.
package stream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"slideview/internal/viewport"
)

// MessageType is the leading byte of client->server frames (and of
// fixed-size server->client control frames).
type MessageType byte

const (
	MsgUpdate      MessageType = 0
	MsgOpen        MessageType = 1
	MsgClose       MessageType = 2
	MsgClearCache  MessageType = 3
	MsgProgress    MessageType = 4
	MsgRequestTile MessageType = 5
	MsgRateLimited MessageType = 6
)

// SlotNone in an open ack signals resource exhaustion: no free slot.
const SlotNone = 0xFF

// Wire sizes. All integers are little endian.
const (
	viewportSize = 20      // x f32, y f32, width u32, height u32, zoom f32
	imageSize    = 16 + 12 // uuid + width/height/levels u32
	openAckSize  = 1 + 1 + 16
	progressSize = 1 + 16 + 4 + 4
	tileHdrSize  = 1 + 4 + 4 + 4 // slot + x + y + level
)

func putViewport(b []byte, v viewport.Viewport) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], uint32(v.Width))
	binary.LittleEndian.PutUint32(b[12:], uint32(v.Height))
	binary.LittleEndian.PutUint32(b[16:], math.Float32bits(float32(v.Zoom)))
}

func getViewport(b []byte) viewport.Viewport {
	return viewport.Viewport{
		X:      float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))),
		Y:      float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
		Width:  int(binary.LittleEndian.Uint32(b[8:])),
		Height: int(binary.LittleEndian.Uint32(b[12:])),
		Zoom:   float64(math.Float32frombits(binary.LittleEndian.Uint32(b[16:]))),
	}
}

// EncodeOpen builds an Open frame: type, dpi, image descriptor, initial
// viewport.
func EncodeOpen(dpi float64, img viewport.ImageDescriptor, v viewport.Viewport) []byte {
	b := make([]byte, 1+4+imageSize+viewportSize)
	b[0] = byte(MsgOpen)
	binary.LittleEndian.PutUint32(b[1:], math.Float32bits(float32(dpi)))
	copy(b[5:], img.ID[:])
	binary.LittleEndian.PutUint32(b[21:], uint32(img.Width))
	binary.LittleEndian.PutUint32(b[25:], uint32(img.Height))
	binary.LittleEndian.PutUint32(b[29:], uint32(img.Levels))
	putViewport(b[33:], v)
	return b
}

// EncodeUpdate builds an Update frame for an open slot.
func EncodeUpdate(slot byte, v viewport.Viewport) []byte {
	b := make([]byte, 1+1+viewportSize)
	b[0] = byte(MsgUpdate)
	b[1] = slot
	putViewport(b[2:], v)
	return b
}

// EncodeClose builds a Close frame.
func EncodeClose(slot byte) []byte { return []byte{byte(MsgClose), slot} }

// EncodeRequestTile builds an explicit tile retry request.
func EncodeRequestTile(slot byte, k viewport.TileKey) []byte {
	b := make([]byte, 1+tileHdrSize)
	b[0] = byte(MsgRequestTile)
	b[1] = slot
	binary.LittleEndian.PutUint32(b[2:], uint32(k.X))
	binary.LittleEndian.PutUint32(b[6:], uint32(k.Y))
	binary.LittleEndian.PutUint32(b[10:], uint32(k.Level))
	return b
}

// Server->client messages.
type (
	// OpenAck answers an Open. Slot is SlotNone on exhaustion.
	OpenAck struct {
		Slot    byte
		ImageID uuid.UUID
	}
	// TilePayload carries one tile's encoded bytes.
	TilePayload struct {
		Slot byte
		Key  viewport.TileKey
		Data []byte
	}
	// Progress reports server-side slide preparation progress.
	Progress struct {
		SlideID uuid.UUID
		Steps   int32
		Total   int32
	}
	// RateLimited tells the client to back off.
	RateLimited struct{}
)

// ParseServerMessage decodes one binary frame from the server. Fixed-size
// control frames are matched by exact length and type byte; every other
// frame of at least a tile header is a tile payload (tiles carry no type
// byte, matching the server's framing).
func ParseServerMessage(data []byte) (any, error) {
	switch {
	case len(data) == openAckSize && MessageType(data[0]) == MsgOpen:
		var id uuid.UUID
		copy(id[:], data[2:18])
		return OpenAck{Slot: data[1], ImageID: id}, nil

	case len(data) == progressSize && MessageType(data[0]) == MsgProgress:
		var id uuid.UUID
		copy(id[:], data[1:17])
		return Progress{
			SlideID: id,
			Steps:   int32(binary.LittleEndian.Uint32(data[17:])),
			Total:   int32(binary.LittleEndian.Uint32(data[21:])),
		}, nil

	case len(data) == 1 && MessageType(data[0]) == MsgRateLimited:
		return RateLimited{}, nil

	case len(data) >= tileHdrSize:
		return TilePayload{
			Slot: data[0],
			Key: viewport.TileKey{
				X:     int(binary.LittleEndian.Uint32(data[1:])),
				Y:     int(binary.LittleEndian.Uint32(data[5:])),
				Level: int(binary.LittleEndian.Uint32(data[9:])),
			},
			Data: data[tileHdrSize:],
		}, nil
	}
	return nil, fmt.Errorf("unrecognized server frame (%d bytes)", len(data))
}
