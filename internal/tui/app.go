// Package tui is the interactive shell: a slide picker, one or two slide
// panes, and the glue between terminal input, the streaming client, the
// annotation sync layer and the local restore store.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"

	"slideview/internal/annosync"
	"slideview/internal/annotate"
	"slideview/internal/mask"
	"slideview/internal/model"
	"slideview/internal/pane"
	"slideview/internal/sched"
	"slideview/internal/store"
	"slideview/internal/tilecache"
	"slideview/internal/viewport"
)

const (
	frameInterval = 16 * time.Millisecond
	syncDelay     = 350 * time.Millisecond
	noticeTTL     = 4 * time.Second
	panStep       = 48 // screen px per arrow key
	decodeBudget  = 4  // tiles decoded per frame tick
	minimapCols   = 18 // cell width of the minimap panel
)

// SlideServer is the streaming side the viewer talks to.
type SlideServer interface {
	OpenSlide(img viewport.ImageDescriptor, dpi float64, vp viewport.Viewport) error
	UpdateViewport(id uuid.UUID, vp viewport.Viewport)
	CloseSlide(id uuid.UUID)
	RequestTile(id uuid.UUID, key viewport.TileKey)
}

// AnnotationAPI is the read side of the persistence service.
type AnnotationAPI interface {
	ListSlides(ctx context.Context) ([]model.SlideSummary, error)
	ListAnnotations(ctx context.Context, setID string) ([]model.Annotation, error)
}

// annotationPusher is the write side (satisfied by *annosync.Syncer).
type annotationPusher interface {
	QueueCreate(localKey string, req model.CreateAnnotationRequest)
	QueueUpdate(serverID string, req model.UpdateAnnotationRequest)
	Pending() int
	Flush(ctx context.Context) error
}

type view int

const (
	viewPicker view = iota
	viewViewer
)

// External events forwarded into the bubbletea loop.
type (
	openResultMsg struct {
		id   uuid.UUID
		slot int
	}
	tileMsg struct {
		id   uuid.UUID
		key  viewport.TileKey
		data []byte
	}
	progressMsg struct {
		id           uuid.UUID
		steps, total int32
	}
	noticeMsg string

	slidesLoadedMsg      struct{ slides []model.SlideSummary }
	annotationsLoadedMsg struct {
		id    uuid.UUID
		items []model.Annotation
	}
	maskSyncedMsg struct {
		origin mask.Origin
		id     string
	}
	loadErrMsg   struct{ err error }
	syncDoneMsg  struct{ err error }
	frameTickMsg struct{}
	syncTickMsg  struct{}
	noticeGoneMsg struct{ seq int }
)

type appModel struct {
	server SlideServer
	api    AnnotationAPI
	syncer annotationPusher
	store  store.Store
	reg    *tilecache.Registry
	setID  string
	dpi    float64

	msgs chan tea.Msg

	width, height int
	view          view
	showHelp      bool
	showMinimap   bool
	eraseMode     bool

	picker   list.Model
	spin     spinner.Model
	opening  bool
	slides   []model.SlideSummary
	autoOpen uuid.UUID

	panes  []*pane.Pane
	active int

	annotations []model.Annotation
	roi         *model.ROIEndpoints

	sinks       []RenderSink
	sinkFactory func() RenderSink
	minimapSink RenderSink

	notice    string
	noticeErr bool
	noticeSeq int

	// The sync debounce runs on a virtual clock advanced from tick
	// messages: a tick armed before the latest mutation advances the clock
	// short of the re-armed deadline and flushes nothing.
	clock        *sched.Scheduler
	syncDebounce *sched.Debouncer
	lastAdvance  time.Time

	frameLive bool

	dragging       bool
	lastMX, lastMY int
}

func newAppModel(server SlideServer, api AnnotationAPI, syncer annotationPusher, st store.Store, reg *tilecache.Registry, setID string, dpi float64, msgs chan tea.Msg) appModel {
	m := appModel{
		server:      server,
		api:         api,
		syncer:      syncer,
		store:       st,
		reg:         reg,
		setID:       setID,
		dpi:         dpi,
		msgs:        msgs,
		sinkFactory: NewCellSink,
		showMinimap: true,
		clock:       sched.New(),
	}
	m.syncDebounce = sched.NewDebouncer(m.clock, syncDelay)

	m.picker = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.picker.Title = "Slides"
	m.picker.SetShowHelp(false)
	m.picker.SetShowStatusBar(false)
	m.picker.SetFilteringEnabled(true)
	m.picker.KeyMap.Quit.SetKeys("q")

	m.spin = spinner.New()
	m.spin.Spinner = spinner.Dot
	return m
}

type slideItem struct{ s model.SlideSummary }

func (i slideItem) Title() string { return i.s.Name }
func (i slideItem) Description() string {
	return fmt.Sprintf("%d x %d px, %d levels", i.s.Width, i.s.Height, i.s.Levels)
}
func (i slideItem) FilterValue() string { return i.s.Name }

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.loadSlidesCmd(), m.waitExternal(), m.spin.Tick)
}

// waitExternal pumps one forwarded event from the stream/sync goroutines.
func (m appModel) waitExternal() tea.Cmd {
	return func() tea.Msg { return <-m.msgs }
}

func (m appModel) loadSlidesCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slides, err := api.ListSlides(ctx)
		if err != nil {
			return loadErrMsg{err: fmt.Errorf("list slides: %w", err)}
		}
		return slidesLoadedMsg{slides: slides}
	}
}

func (m appModel) loadAnnotationsCmd(id uuid.UUID) tea.Cmd {
	api, setID := m.api, m.setID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		items, err := api.ListAnnotations(ctx, setID)
		if err != nil {
			return loadErrMsg{err: fmt.Errorf("list annotations: %w", err)}
		}
		return annotationsLoadedMsg{id: id, items: items}
	}
}

func (m *appModel) flushSyncCmd() tea.Cmd {
	syncer := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return syncDoneMsg{err: syncer.Flush(ctx)}
	}
}

// scheduleSync re-arms the quiet-period debounce and wakes the loop one
// window later. The debouncer, not the tick, decides whether the quiet
// period really elapsed.
func (m *appModel) scheduleSync() tea.Cmd {
	m.advanceClock()
	m.syncDebounce.Trigger(func() {})
	return tea.Tick(syncDelay, func(time.Time) tea.Msg { return syncTickMsg{} })
}

// advanceClock moves the debounce scheduler up to wall time.
func (m *appModel) advanceClock() {
	now := time.Now()
	if !m.lastAdvance.IsZero() {
		m.clock.Advance(now.Sub(m.lastAdvance))
	}
	m.lastAdvance = now
}

func (m *appModel) setNotice(text string, isErr bool) tea.Cmd {
	m.notice = text
	m.noticeErr = isErr
	m.noticeSeq++
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeGoneMsg{seq: seq} })
}

// ensureFrameLoop arms the per-frame tick when inertia or decode work is
// pending; the tick re-arms itself while there is work left.
func (m *appModel) ensureFrameLoop() tea.Cmd {
	if m.frameLive || !m.frameWork() {
		return nil
	}
	m.frameLive = true
	return tea.Tick(frameInterval, func(time.Time) tea.Msg { return frameTickMsg{} })
}

func (m *appModel) frameWork() bool {
	for _, p := range m.panes {
		if p.Gliding() || p.Cache().Stats().PendingDecodes > 0 {
			return true
		}
	}
	return false
}

func (m *appModel) activePane() *pane.Pane {
	if len(m.panes) == 0 {
		return nil
	}
	return m.panes[m.active]
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.picker.SetSize(msg.Width, msg.Height-2)
		m.resizePanes()
		return m, nil

	case slidesLoadedMsg:
		m.slides = msg.slides
		items := make([]list.Item, len(msg.slides))
		for i, s := range msg.slides {
			items[i] = slideItem{s: s}
		}
		m.picker.SetItems(items)
		if m.autoOpen != uuid.Nil {
			for _, s := range msg.slides {
				if s.ID == m.autoOpen {
					m.autoOpen = uuid.Nil
					return m.openSlide(s)
				}
			}
			m.autoOpen = uuid.Nil
			return m, m.setNotice("slide not found on server", true)
		}
		return m, nil

	case loadErrMsg:
		return m, m.setNotice(msg.err.Error(), true)

	case annotationsLoadedMsg:
		if p := m.activePane(); p != nil && p.Image.ID == msg.id {
			m.annotations = msg.items
		}
		return m, nil

	case openResultMsg:
		return m.handleOpenResult(msg)

	case tileMsg:
		for _, p := range m.panes {
			if p.Image.ID == msg.id {
				p.Cache().Put(msg.key, msg.data)
				break // shared cache; one Put is enough
			}
		}
		return m, tea.Batch(m.waitExternal(), m.ensureFrameLoop())

	case progressMsg:
		return m, tea.Batch(m.waitExternal(),
			m.setNotice(fmt.Sprintf("preparing slide: %d/%d", msg.steps, msg.total), false))

	case noticeMsg:
		return m, tea.Batch(m.waitExternal(), m.setNotice(string(msg), false))

	case maskSyncedMsg:
		if p := m.activePane(); p != nil {
			if ms := p.Editor().MaskSession(); ms != nil {
				ms.MarkSynced(msg.origin, msg.id)
			}
		}
		return m, m.waitExternal()

	case frameTickMsg:
		m.frameLive = false
		var cmds []tea.Cmd
		for _, p := range m.panes {
			p.Cache().DecodeNext(decodeBudget)
		}
		if p := m.activePane(); p != nil {
			p.StepInertia()
		}
		if c := m.ensureFrameLoop(); c != nil {
			cmds = append(cmds, c)
		}
		return m, tea.Batch(cmds...)

	case syncTickMsg:
		armed := m.syncDebounce.Pending()
		m.advanceClock()
		if armed && !m.syncDebounce.Pending() && m.syncer.Pending() > 0 {
			return m, m.flushSyncCmd()
		}
		return m, nil

	case syncDoneMsg:
		if msg.err != nil {
			// Entries stay queued; retry on the next mutation's debounce.
			return m, tea.Batch(
				m.setNotice("annotation sync failed: "+msg.err.Error(), true),
				m.scheduleSync(),
			)
		}
		return m, nil

	case noticeGoneMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.opening {
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)
	}

	if m.view == viewPicker {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m appModel) handleOpenResult(msg openResultMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	cmds = append(cmds, m.waitExternal())
	for _, p := range m.panes {
		if p.Image.ID != msg.id {
			continue
		}
		if msg.slot < 0 {
			p.SetLoadError(fmt.Errorf("server is out of slide slots"))
			cmds = append(cmds, m.setNotice("could not open slide: server is out of slots", true))
		} else if p.LoadError() != nil {
			p.ClearLoadError()
		}
	}
	if m.opening {
		m.opening = false
		m.view = viewViewer
		cmds = append(cmds, m.loadAnnotationsCmd(msg.id))
	}
	return m, tea.Batch(cmds...)
}

func (m *appModel) resizePanes() {
	if len(m.panes) == 0 {
		return
	}
	w, h := m.paneCellSize()
	for _, p := range m.panes {
		p.Resize(w, h*2)
	}
}

// paneAreaWidth is the terminal width left for panes once the minimap
// panel has its column.
func (m *appModel) paneAreaWidth() int {
	if m.showMinimap {
		return m.width - minimapCols - 2
	}
	return m.width
}

// paneCellSize is the cell grid available to each pane, minus the border
// and the two chrome lines.
func (m *appModel) paneCellSize() (int, int) {
	rows := m.height - 4
	avail := m.paneAreaWidth()
	cols := avail - 2
	if len(m.panes) == 2 {
		cols = avail/2 - 2
	}
	if cols < 4 {
		cols = 4
	}
	if rows < 4 {
		rows = 4
	}
	return cols, rows
}

func (m appModel) openSlide(s model.SlideSummary) (tea.Model, tea.Cmd) {
	img := viewport.ImageDescriptor{ID: s.ID, Width: s.Width, Height: s.Height, Levels: s.Levels}
	w, h := m.paneCellSize()

	p := pane.New(img, m.dpi, m.reg, w, h*2)
	m.wirePane(p)
	m.panes = []*pane.Pane{p}
	m.active = 0
	m.sinks = []RenderSink{m.sinkFactory()}
	m.minimapSink = m.sinkFactory()
	m.annotations = nil
	m.opening = true

	var cmds []tea.Cmd
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	saved, err := m.store.Load(ctx, s.ID)
	cancel()
	if err == nil && saved.Viewport != nil {
		p.Restore(*saved.Viewport)
	}
	if err == nil {
		m.roi = saved.ROI
	}

	if err := m.server.OpenSlide(img, m.dpi, p.Viewport()); err != nil {
		cmds = append(cmds, m.setNotice("open failed: "+err.Error(), true))
	}
	cmds = append(cmds, m.spin.Tick)
	return m, tea.Batch(cmds...)
}

func (m *appModel) wirePane(p *pane.Pane) {
	id := p.Image.ID
	p.OnViewport = func(v viewport.Viewport) { m.server.UpdateViewport(id, v) }
	p.OnMaskFlush = func() { m.queueMaskTiles(p) }
	p.OnRequestTile = func(k viewport.TileKey) { m.server.RequestTile(id, k) }
}

// queueMaskTiles pushes every dirty mask tile into the syncer: create for
// never-synced tiles, update otherwise. Tiles are marked clean here; the
// syncer owns retries from this point.
func (m *appModel) queueMaskTiles(p *pane.Pane) {
	ms := p.Editor().MaskSession()
	if ms == nil {
		return
	}
	for _, t := range ms.DirtyTiles() {
		geo := model.MaskGeometry{
			X0:       float64(t.Origin.X),
			Y0:       float64(t.Origin.Y),
			Width:    t.Bits.Width,
			Height:   t.Bits.Height,
			Encoding: "bitmask",
			Data:     t.Bits.ToBase64(),
		}
		if t.AnnotationID == "" {
			key := fmt.Sprintf("mask:%d:%d", t.Origin.X, t.Origin.Y)
			m.syncer.QueueCreate(key, model.CreateAnnotationRequest{Kind: model.KindMask, Geometry: geo})
		} else {
			m.syncer.QueueUpdate(t.AnnotationID, model.UpdateAnnotationRequest{Geometry: geo})
			ms.MarkSynced(t.Origin, t.AnnotationID)
		}
	}
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch msg.String() {
		case "?", "esc", "q":
			m.showHelp = false
		}
		return m, nil
	}
	if msg.String() == "?" {
		m.showHelp = true
		return m, nil
	}

	if m.view == viewPicker {
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if it, ok := m.picker.SelectedItem().(slideItem); ok {
				return m.openSlide(it.s)
			}
		}
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	p := m.activePane()
	if p == nil {
		return m, nil
	}
	ed := p.Editor()

	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "q":
		return m.quit()
	case "esc":
		if ed.Tool() != annotate.ToolNone {
			ed.HandleKey(annotate.KeyEscape)
			return m.drainEditor(p)
		}
		return m.closeViewer()

	case "up", "k":
		p.Pan(0, -panStep)
	case "down", "j":
		p.Pan(0, panStep)
	case "left", "h":
		p.Pan(-panStep, 0)
	case "right", "l":
		p.Pan(panStep, 0)
	case "+", "=":
		p.ZoomAround(float64(p.Viewport().Width)/2, float64(p.Viewport().Height)/2, 1.25)
	case "-", "_":
		p.ZoomAround(float64(p.Viewport().Width)/2, float64(p.Viewport().Height)/2, 1/1.25)
	case "0":
		v := p.Viewport()
		v.Zoom = v.FitZoom(p.Image.Width, p.Image.Height)
		p.Restore(v.CenterOn(p.Image.Width, p.Image.Height))

	case "tab":
		if len(m.panes) == 2 {
			m.panes[m.active].Deactivate()
			m.active = 1 - m.active
		}
	case "|":
		return m.toggleSplit()

	case "1":
		p.SetTool(annotate.ToolPoint)
	case "2":
		p.SetTool(annotate.ToolMultiPoint)
	case "3":
		p.SetTool(annotate.ToolEllipse)
	case "4":
		p.SetTool(annotate.ToolPolygon)
	case "5":
		p.SetTool(annotate.ToolFreehand)
	case "6":
		p.SetTool(annotate.ToolMask)

	case "enter":
		ed.HandleKey(annotate.KeyCommit)
		return m.drainEditor(p)
	case " ":
		m.cycleEllipseKey(ed)
		return m.drainEditor(p)

	case "u":
		if ms := ed.MaskSession(); ms != nil && ms.Undo() {
			return m, m.maskMutated(p)
		}
	case "U":
		if ms := ed.MaskSession(); ms != nil && ms.Redo() {
			return m, m.maskMutated(p)
		}
	case "e":
		m.eraseMode = !m.eraseMode

	case "m":
		m.showMinimap = !m.showMinimap
		m.resizePanes()

	case "r":
		ix, iy := p.Viewport().ScreenToImage(float64(p.Viewport().Width)/2, float64(p.Viewport().Height)/2)
		if m.roi == nil {
			m.roi = &model.ROIEndpoints{X1: ix, Y1: iy, X2: ix, Y2: iy}
		} else {
			m.roi.X2, m.roi.Y2 = ix, iy
		}
	}
	return m, m.ensureFrameLoop()
}

// cycleEllipseKey advances the ellipse sub-phase: position, size, rotation,
// back to position.
func (m *appModel) cycleEllipseKey(ed *annotate.Editor) {
	switch ed.Phase() {
	case "ellipse-center":
		ed.HandleKey(annotate.KeyEllipseSize)
	case "ellipse-radii":
		ed.HandleKey(annotate.KeyEllipseRotation)
	case "ellipse-angle":
		ed.HandleKey(annotate.KeyEllipsePosition)
	}
}

func (m appModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.view != viewViewer {
		return m, nil
	}
	p := m.paneAt(msg.X)
	if p == nil {
		return m, nil
	}
	sx, sy := m.paneScreenCoords(msg.X, msg.Y)
	ed := p.Editor()
	toolActive := ed.Tool() != annotate.ToolNone
	erase := m.eraseMode || msg.Alt

	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			p.ZoomAround(sx, sy, 1.2)
			return m, m.ensureFrameLoop()
		case tea.MouseButtonWheelDown:
			p.ZoomAround(sx, sy, 1/1.2)
			return m, m.ensureFrameLoop()
		case tea.MouseButtonLeft:
			if toolActive {
				ed.PointerDown(m.pointerEvent(p, sx, sy, erase))
				return m.drainEditor(p)
			}
			p.CancelInertia()
			m.dragging = true
			m.lastMX, m.lastMY = msg.X, msg.Y
		}

	case tea.MouseActionMotion:
		if toolActive {
			ed.PointerMove(m.pointerEvent(p, sx, sy, erase))
			return m.drainEditor(p)
		}
		if m.dragging {
			dx := float64(msg.X - m.lastMX)
			dy := float64((msg.Y - m.lastMY) * 2)
			m.lastMX, m.lastMY = msg.X, msg.Y
			p.DragBy(-dx, -dy)
		}

	case tea.MouseActionRelease:
		if toolActive {
			ed.PointerUp(m.pointerEvent(p, sx, sy, erase))
			return m.drainEditor(p)
		}
		if m.dragging {
			m.dragging = false
			p.EndDrag()
			return m, m.ensureFrameLoop()
		}
	}
	return m, nil
}

// paneAt maps a terminal column to the pane under it.
func (m *appModel) paneAt(x int) *pane.Pane {
	if len(m.panes) == 0 {
		return nil
	}
	if len(m.panes) == 2 && x >= m.paneAreaWidth()/2 {
		return m.panes[1]
	}
	return m.panes[0]
}

// paneScreenCoords converts terminal cell coordinates to the pane's pixel
// grid (one cell is two pixels tall; border eats one cell on each edge).
func (m *appModel) paneScreenCoords(x, y int) (float64, float64) {
	col := x - 1
	if half := m.paneAreaWidth() / 2; len(m.panes) == 2 && x >= half {
		col = x - half - 1
	}
	return float64(col), float64((y - 1) * 2)
}

func (m *appModel) pointerEvent(p *pane.Pane, sx, sy float64, erase bool) annotate.PointerEvent {
	ix, iy := p.Viewport().ScreenToImage(sx, sy)
	return annotate.PointerEvent{Pos: annotate.Pt{X: ix, Y: iy}, Zoom: p.Viewport().Zoom, Erase: erase}
}

// drainEditor turns editor events into sync work and notices.
func (m appModel) drainEditor(p *pane.Pane) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	for _, ev := range p.Editor().DrainEvents() {
		switch ev := ev.(type) {
		case annotate.Confirmed:
			cmds = append(cmds, m.queueDraft(ev))
		case annotate.Rejected:
			cmds = append(cmds, m.setNotice(ev.Reason, true))
		case annotate.MaskStroke:
			if ev.Changed {
				cmds = append(cmds, m.maskMutated(p))
			}
		case annotate.MaskConfirmed:
			m.queueMaskTiles(p)
			cmds = append(cmds, m.scheduleSync())
		case annotate.Cancelled:
		}
	}
	cmds = append(cmds, m.ensureFrameLoop())
	return m, tea.Batch(cmds...)
}

// maskMutated re-queues the session's dirty tiles and re-arms the debounce.
func (m *appModel) maskMutated(p *pane.Pane) tea.Cmd {
	m.queueMaskTiles(p)
	return m.scheduleSync()
}

func (m *appModel) queueDraft(ev annotate.Confirmed) tea.Cmd {
	var kind model.AnnotationKind
	var geo any
	switch d := ev.Draft.(type) {
	case annotate.PointDraft:
		kind, geo = model.KindPoint, model.PointGeometry{X: d.Pos.X, Y: d.Pos.Y}
	case annotate.PolygonDraft:
		path := make([][2]float64, len(d.Vertices))
		for i, v := range d.Vertices {
			path[i] = [2]float64{v.X, v.Y}
		}
		kind, geo = model.KindPolygon, model.PolygonGeometry{Path: path}
	case annotate.EllipseDraft:
		kind, geo = model.KindEllipse, model.EllipseGeometry{
			CX: d.CX, CY: d.CY, RadiusX: d.RX, RadiusY: d.RY, Rotation: d.Rotation,
		}
	default:
		return nil
	}

	if ev.AnnotationID != "" {
		m.syncer.QueueUpdate(ev.AnnotationID, model.UpdateAnnotationRequest{Geometry: geo})
	} else {
		m.syncer.QueueCreate(fmt.Sprintf("draft:%d", time.Now().UnixNano()), model.CreateAnnotationRequest{Kind: kind, Geometry: geo})
	}
	return m.scheduleSync()
}

func (m appModel) toggleSplit() (tea.Model, tea.Cmd) {
	p := m.activePane()
	if p == nil {
		return m, nil
	}
	if len(m.panes) == 2 {
		m.panes[1].Close()
		m.panes = m.panes[:1]
		m.sinks = m.sinks[:1]
		m.active = 0
		m.resizePanes()
		return m, nil
	}
	// Second pane on the same image shares the cache via the registry.
	other := pane.New(p.Image, m.dpi, m.reg, 1, 2)
	m.wirePane(other)
	other.Restore(p.Viewport())
	if p.LoadError() != nil {
		other.SetLoadError(p.LoadError())
	}
	m.panes = append(m.panes, other)
	m.sinks = append(m.sinks, m.sinkFactory())
	m.resizePanes()
	return m, nil
}

func (m appModel) closeViewer() (tea.Model, tea.Cmd) {
	m.saveState()
	for _, p := range m.panes {
		p.Deactivate()
		p.Close()
	}
	if p := m.activePane(); p != nil {
		m.server.CloseSlide(p.Image.ID)
	}
	m.panes = nil
	m.sinks = nil
	m.minimapSink = nil
	m.annotations = nil
	m.roi = nil
	m.eraseMode = false
	m.view = viewPicker
	m.syncDebounce.Cancel()
	var flush tea.Cmd
	if m.syncer.Pending() > 0 {
		flush = m.flushSyncCmd()
	}
	return m, flush
}

func (m appModel) quit() (tea.Model, tea.Cmd) {
	m.saveState()
	for _, p := range m.panes {
		p.Deactivate()
	}
	m.syncDebounce.Cancel()
	if m.syncer.Pending() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = m.syncer.Flush(ctx)
		cancel()
	}
	return m, tea.Quit
}

func (m *appModel) saveState() {
	p := m.activePane()
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v := p.Viewport()
	_ = m.store.Save(ctx, p.Image.ID, store.SlideState{Viewport: &v, ROI: m.roi})
}

func (m appModel) View() string {
	if m.showHelp {
		return renderMarkdown(helpMarkdown, m.width-4)
	}
	switch m.view {
	case viewPicker:
		header := ""
		if m.opening {
			header = m.spin.View() + " opening slide..."
		}
		body := m.picker.View()
		if header != "" {
			body = header + "\n" + body
		}
		return body + "\n" + m.chromeView()
	default:
		return m.viewerView()
	}
}

func (m appModel) viewerView() string {
	w, h := m.paneCellSize()
	var rendered []string
	for i, p := range m.panes {
		var body string
		if p.LoadError() != nil {
			body = styleError().Render("slide unavailable: " + p.LoadError().Error())
		} else {
			renderPane(p, m.annotations, m.sinks[i], w, h)
			body = m.sinks[i].Flush()
		}
		style := styleInactivePane()
		if i == m.active {
			style = styleActivePane()
		}
		rendered = append(rendered, style.Render(body))
	}
	view := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if m.showMinimap {
		if mv := m.minimapView(); mv != "" {
			view = lipgloss.JoinHorizontal(lipgloss.Top, view, mv)
		}
	}
	return view + "\n" + m.statusLine() + "\n" + m.chromeView()
}

// minimapView renders the active pane's thumbnail panel. Empty until the
// coarsest level has decoded tiles.
func (m appModel) minimapView() string {
	p := m.activePane()
	if p == nil || p.LoadError() != nil || m.minimapSink == nil {
		return ""
	}
	rows := int(float64(minimapCols)*float64(p.Image.Height)/float64(p.Image.Width)/2 + 0.5)
	if rows < 3 {
		rows = 3
	}
	if limit := m.height - 4; rows > limit && limit >= 3 {
		rows = limit
	}
	img := renderMinimap(p, minimapCols, rows)
	if img == nil {
		return ""
	}
	m.minimapSink.Frame(minimapCols, rows)
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < minimapCols; cx++ {
			m.minimapSink.Cell(cx, cy, img.At(cx, cy*2), img.At(cx, cy*2+1))
		}
	}
	return styleInactivePane().Render(m.minimapSink.Flush())
}

func (m appModel) statusLine() string {
	p := m.activePane()
	if p == nil {
		return ""
	}
	v := p.Viewport()
	st := p.Cache().Stats()
	parts := []string{
		fmt.Sprintf("zoom %.1f%%", v.Zoom*100),
		fmt.Sprintf("level %d/%d", p.IdealLevel(), p.Image.Levels-1),
		fmt.Sprintf("tiles %d (%s)", st.Tiles, formatBytes(st.BytesUsed)),
	}
	if t := p.Editor().Tool(); t != annotate.ToolNone {
		parts = append(parts, "tool "+toolName(t)+" ["+p.Editor().Phase()+"]")
		if t == annotate.ToolMask && m.eraseMode {
			parts = append(parts, "erase")
		}
	}
	if m.roi != nil {
		d := math.Hypot(m.roi.X2-m.roi.X1, m.roi.Y2-m.roi.Y1)
		parts = append(parts, fmt.Sprintf("roi %.0f px", d))
	}
	if n := m.syncer.Pending(); n > 0 {
		parts = append(parts, fmt.Sprintf("sync pending %d", n))
	}
	return xansi.Truncate(styleStatusBar().Render(strings.Join(parts, "  |  ")), m.width, "…")
}

func (m appModel) chromeView() string {
	if m.notice == "" {
		return styleStatusBar().Render("? help  q quit")
	}
	style := styleNotice()
	if m.noticeErr {
		style = styleError()
	}
	return xansi.Truncate(style.Render(m.notice), m.width, "…")
}

func toolName(t annotate.Tool) string {
	switch t {
	case annotate.ToolPoint:
		return "point"
	case annotate.ToolMultiPoint:
		return "multipoint"
	case annotate.ToolEllipse:
		return "ellipse"
	case annotate.ToolPolygon:
		return "polygon"
	case annotate.ToolFreehand:
		return "freehand"
	case annotate.ToolMask:
		return "mask"
	}
	return "none"
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// Ensure the production types satisfy the seams used by tests.
var (
	_ AnnotationAPI    = (*annosync.Client)(nil)
	_ annotationPusher = (*annosync.Syncer)(nil)
)
