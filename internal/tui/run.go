package tui

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"slideview/internal/annosync"
	"slideview/internal/mask"
	"slideview/internal/store"
	"slideview/internal/stream"
	"slideview/internal/tilecache"
	"slideview/internal/viewport"
)

// Options configures the interactive viewer.
type Options struct {
	// TileServerURL is the websocket endpoint streaming tiles.
	TileServerURL string
	// APIURL is the annotation persistence service.
	APIURL string
	// AnnotationSetID receives created annotations.
	AnnotationSetID string
	// DPI of the output device; drives pyramid level selection.
	DPI float64
	// StateDir overrides the default local state directory.
	StateDir string
	// SlideID, when set, opens that slide immediately instead of showing
	// the picker.
	SlideID uuid.UUID
}

// Run starts the TUI and blocks until it exits.
func Run(opts Options) error {
	applyColorProfilePreference()

	dir := opts.StateDir
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}
	st := store.Store{Dir: dir}

	api := annosync.NewClient(opts.APIURL)
	syncer := annosync.NewSyncer(api, opts.AnnotationSetID)
	reg := tilecache.NewRegistry(tilecache.DecoderFunc(decodeTile))

	msgs := make(chan tea.Msg, 64)
	client := stream.NewClient(stream.WebsocketDialer(opts.TileServerURL), stream.Handlers{
		OnOpenResult: func(id uuid.UUID, slot int) {
			msgs <- openResultMsg{id: id, slot: slot}
		},
		OnTile: func(id uuid.UUID, key viewport.TileKey, data []byte) {
			msgs <- tileMsg{id: id, key: key, data: data}
		},
		OnProgress: func(id uuid.UUID, steps, total int32) {
			msgs <- progressMsg{id: id, steps: steps, total: total}
		},
		OnNotice: func(s string) {
			msgs <- noticeMsg(s)
		},
	})
	client.Run()
	defer client.Close()

	m := newAppModel(client, api, syncer, st, reg, opts.AnnotationSetID, opts.DPI, msgs)
	m.autoOpen = opts.SlideID
	syncer.OnCreated = func(localKey, serverID string) {
		if o, ok := parseMaskKey(localKey); ok {
			msgs <- maskSyncedMsg{origin: o, id: serverID}
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func parseMaskKey(key string) (mask.Origin, bool) {
	var o mask.Origin
	if _, err := fmt.Sscanf(key, "mask:%d:%d", &o.X, &o.Y); err != nil {
		return mask.Origin{}, false
	}
	return o, true
}

func decodeTile(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	return img, nil
}
