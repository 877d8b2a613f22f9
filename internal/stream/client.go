package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"slideview/internal/viewport"
)

// UpdateWindow is the per-slot viewport coalescing window. Sending updates
// faster than the server answers causes cancellation races where a later
// update's tile dispatch is pre-empted by an earlier one, so within the
// window only the latest viewport survives.
const UpdateWindow = 16 * time.Millisecond

// reconnect backoff bounds.
const (
	reconnectMin = 250 * time.Millisecond
	reconnectMax = 10 * time.Second
)

// Conn is the subset of *websocket.Conn the client needs; tests supply
// fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens one connection to the tile server.
type Dialer func(ctx context.Context) (Conn, error)

// WebsocketDialer dials the given ws:// or wss:// URL with gorilla.
func WebsocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Handlers receives the client's outbound events. All callbacks fire on
// the client's read goroutine; implementations forward into their own
// event loop.
type Handlers struct {
	// OnOpenResult reports the slot assigned to an image, or -1 on
	// resource exhaustion. It fires again with a fresh slot after every
	// reconnect replay.
	OnOpenResult func(imageID uuid.UUID, slot int)
	// OnTile delivers one tile payload.
	OnTile func(imageID uuid.UUID, key viewport.TileKey, data []byte)
	// OnProgress reports server-side slide preparation.
	OnProgress func(slideID uuid.UUID, steps, total int32)
	// OnNotice surfaces transient connection-level conditions.
	OnNotice func(msg string)
}

// slide is one tracked open image.
type slide struct {
	img viewport.ImageDescriptor
	dpi float64
	vp  viewport.Viewport

	slot   int // -1 until the server acks the open
	failed bool

	// coalescing state
	lastSent time.Time
	pending  *time.Timer
}

// Client multiplexes all open slides over one connection. Safe for use
// from multiple goroutines.
type Client struct {
	dial     Dialer
	handlers Handlers

	mu     sync.Mutex
	conn   Conn
	slides map[uuid.UUID]*slide
	bySlot map[byte]uuid.UUID
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient returns a client that will dial lazily from Run.
func NewClient(dial Dialer, handlers Handlers) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		dial:     dial,
		handlers: handlers,
		slides:   map[uuid.UUID]*slide{},
		bySlot:   map[byte]uuid.UUID{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run connects and keeps reading until Close, reconnecting with backoff.
// On every (re)connect it replays Open for all still-tracked slides; the
// current viewport is re-sent independently once each open acks, since the
// open alone does not guarantee tiles resume streaming.
func (c *Client) Run() {
	c.wg.Add(1)
	go c.connectLoop()
}

// Close tears the connection down and stops the loops.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

func (c *Client) connectLoop() {
	defer c.wg.Done()
	backoff := reconnectMin
	for {
		if c.ctx.Err() != nil {
			return
		}
		conn, err := c.dial(c.ctx)
		if err != nil {
			c.notice("tile server unreachable, retrying")
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectMin

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		// Protocol desync on reconnect is handled by unconditional
		// replay: every tracked slide re-opens, no partial recovery.
		c.bySlot = map[byte]uuid.UUID{}
		opens := make([][]byte, 0, len(c.slides))
		for _, s := range c.slides {
			s.slot = -1
			s.failed = false
			opens = append(opens, EncodeOpen(s.dpi, s.img, s.vp))
		}
		c.mu.Unlock()

		for _, frame := range opens {
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				break
			}
		}

		c.readAll(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		closed := c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if closed {
			return
		}
		c.notice("connection lost, reconnecting")
	}
}

func (c *Client) readAll(conn Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		msg, err := ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case OpenAck:
			c.handleOpenAck(m)
		case TilePayload:
			c.handleTile(m)
		case Progress:
			if c.handlers.OnProgress != nil {
				c.handlers.OnProgress(m.SlideID, m.Steps, m.Total)
			}
		case RateLimited:
			c.notice("rate limited by tile server")
		}
	}
}

func (c *Client) handleOpenAck(m OpenAck) {
	c.mu.Lock()
	s, ok := c.slides[m.ImageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if m.Slot == SlotNone {
		s.failed = true
		s.slot = -1
		c.mu.Unlock()
		if c.handlers.OnOpenResult != nil {
			c.handlers.OnOpenResult(m.ImageID, -1)
		}
		return
	}
	s.slot = int(m.Slot)
	s.failed = false
	c.bySlot[m.Slot] = m.ImageID
	vp := s.vp
	c.mu.Unlock()

	if c.handlers.OnOpenResult != nil {
		c.handlers.OnOpenResult(m.ImageID, int(m.Slot))
	}
	// Open-before-update ordering holds here by construction: the ack
	// proves the server observed the open.
	c.sendUpdate(m.ImageID, vp, true)
}

func (c *Client) handleTile(m TilePayload) {
	c.mu.Lock()
	id, ok := c.bySlot[m.Slot]
	c.mu.Unlock()
	if !ok || c.handlers.OnTile == nil {
		return
	}
	c.handlers.OnTile(id, m.Key, m.Data)
}

// OpenSlide starts tracking a slide and sends the open if connected. The
// result arrives via OnOpenResult.
func (c *Client) OpenSlide(img viewport.ImageDescriptor, dpi float64, vp viewport.Viewport) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("client closed")
	}
	if _, ok := c.slides[img.ID]; ok {
		c.mu.Unlock()
		return errors.New("slide already open")
	}
	s := &slide{img: img, dpi: dpi, vp: vp, slot: -1}
	c.slides[img.ID] = s
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return conn.WriteMessage(websocket.BinaryMessage, EncodeOpen(dpi, img, vp))
	}
	return nil // sent on connect by replay
}

// CloseSlide stops tracking a slide and frees its slot server-side.
func (c *Client) CloseSlide(imageID uuid.UUID) {
	c.mu.Lock()
	s, ok := c.slides[imageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.slides, imageID)
	var frame []byte
	if s.slot >= 0 {
		delete(c.bySlot, byte(s.slot))
		frame = EncodeClose(byte(s.slot))
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && frame != nil {
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
	}
}

// UpdateViewport records the slide's viewport and sends it, coalesced to
// at most one Update per window: a burst of calls results in one immediate
// send plus one trailing send carrying the final viewport.
func (c *Client) UpdateViewport(imageID uuid.UUID, vp viewport.Viewport) {
	c.sendUpdate(imageID, vp, false)
}

func (c *Client) sendUpdate(imageID uuid.UUID, vp viewport.Viewport, force bool) {
	c.mu.Lock()
	s, ok := c.slides[imageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	s.vp = vp
	// No Update is ever sent for a failed or not-yet-acked slide; the
	// stored viewport rides along with the eventual open replay.
	if s.failed || s.slot < 0 || c.conn == nil {
		c.mu.Unlock()
		return
	}

	now := time.Now()
	if !force && now.Sub(s.lastSent) < UpdateWindow {
		// Inside the window: arm (or keep) the trailing timer; the
		// latest viewport always supersedes earlier ones.
		if s.pending == nil {
			wait := UpdateWindow - now.Sub(s.lastSent)
			s.pending = time.AfterFunc(wait, func() { c.flushPending(imageID) })
		}
		c.mu.Unlock()
		return
	}
	s.lastSent = now
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	frame := EncodeUpdate(byte(s.slot), vp)
	conn := c.conn
	c.mu.Unlock()

	_ = conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Client) flushPending(imageID uuid.UUID) {
	c.mu.Lock()
	s, ok := c.slides[imageID]
	if !ok || s.failed || s.slot < 0 || c.conn == nil {
		if ok {
			s.pending = nil
		}
		c.mu.Unlock()
		return
	}
	s.pending = nil
	s.lastSent = time.Now()
	frame := EncodeUpdate(byte(s.slot), s.vp)
	conn := c.conn
	c.mu.Unlock()

	_ = conn.WriteMessage(websocket.BinaryMessage, frame)
}

// RequestTile asks the server to re-send one tile (retry path).
func (c *Client) RequestTile(imageID uuid.UUID, key viewport.TileKey) {
	c.mu.Lock()
	s, ok := c.slides[imageID]
	conn := c.conn
	var frame []byte
	if ok && s.slot >= 0 {
		frame = EncodeRequestTile(byte(s.slot), key)
	}
	c.mu.Unlock()
	if conn != nil && frame != nil {
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
	}
}

// Slot reports the current slot for an image: -1 when unassigned or failed.
func (c *Client) Slot(imageID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slides[imageID]; ok && !s.failed {
		return s.slot
	}
	return -1
}

func (c *Client) notice(msg string) {
	if c.handlers.OnNotice != nil {
		c.handlers.OnNotice(msg)
	}
}
