package httphandler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/ericfisherdev/commentsync/internal/adapter/driving/editor"
	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// defaultZoneLines sizes a zone body until the client reports its measured
// height.
const defaultZoneLines = 5

const viewportsTimeout = 5 * time.Second

// Parameter shapes of the editor protocol.
type (
	surfaceParams struct {
		URI        string `json:"uri"`
		LineHeight int    `json:"lineHeight"`
	}
	openEditorParams struct {
		surfaceParams
		Original *surfaceParams `json:"original,omitempty"`
	}
	gutterParams struct {
		URI   string                  `json:"uri"`
		Event editor.GutterMouseEvent `json:"event"`
	}
	addCommentParams struct {
		Line int `json:"line"`
	}
	saveDraftParams struct {
		Owner    string `json:"owner"`
		ThreadID string `json:"threadId"`
		Text     string `json:"text"`
	}
	documentEditParams struct {
		URI   string `json:"uri"`
		Line  int    `json:"line"`
		Delta int    `json:"delta"`
	}
	zoneMeasuredParams struct {
		Zone   string `json:"zone"`
		Height int    `json:"height"`
	}

	decorationNotice struct {
		URI    string                  `json:"uri"`
		Handle string                  `json:"handle"`
		Range  *model.Range            `json:"range,omitempty"`
		Style  *editor.DecorationStyle `json:"style,omitempty"`
	}
	zoneNotice struct {
		URI           string `json:"uri,omitempty"`
		Zone          string `json:"zone"`
		AfterLine     int    `json:"afterLine,omitempty"`
		HeightInLines int    `json:"heightInLines,omitempty"`
		HTML          string `json:"html,omitempty"`
	}
	pickParams struct {
		Line    int                 `json:"line"`
		Options []editor.PickOption `json:"options"`
	}
	pickResult struct {
		Owner string `json:"owner"`
		OK    bool   `json:"ok"`
	}
)

// editorSession is one connected editor. The server keeps a mirror of the
// editor's decorations and zones so the coordinator can query them without a
// round trip; every change is pushed to the client as a notification.
type editorSession struct {
	peer   *peer
	coord  *editor.Coordinator
	logger *slog.Logger

	mu       sync.Mutex
	surfaces map[string]*remoteSurface
	zones    map[string]*remoteZone
}

var _ editor.Picker = (*editorSession)(nil)

func newEditorSession(p *peer, logger *slog.Logger) *editorSession {
	return &editorSession{
		peer:     p,
		logger:   logger,
		surfaces: make(map[string]*remoteSurface),
		zones:    make(map[string]*remoteZone),
	}
}

// serve runs the coordinator and the connection until either stops.
func (s *editorSession) serve(ctx context.Context, coord *editor.Coordinator) {
	s.coord = coord

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	s.peer.run(ctx, s.handle)
	cancel()
	<-done
	s.logger.Info("editor session closed")
}

// Pick asks the user to choose a controller for line.
func (s *editorSession) Pick(ctx context.Context, line int, options []editor.PickOption) (string, bool, error) {
	var res pickResult
	if err := s.peer.call(ctx, "pick", pickParams{Line: line, Options: options}, &res); err != nil {
		return "", false, err
	}
	return res.Owner, res.OK && res.Owner != "", nil
}

func (s *editorSession) handle(m message) {
	result, err := s.dispatch(m)
	if err != nil {
		s.logger.Warn("editor request failed", "method", m.Method, "error", err)
	}
	s.peer.reply(m.ID, result, err)
}

func (s *editorSession) dispatch(m message) (any, error) {
	switch m.Method {
	case "openEditor":
		var p openEditorParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		s.resetSurfaces()
		modified := s.newSurface(p.surfaceParams)
		if p.Original != nil {
			s.coord.SetDiffEditor(s.newSurface(*p.Original), modified)
		} else {
			s.coord.SetEditor(modified)
		}
		return nil, nil

	case "closeEditor":
		s.resetSurfaces()
		s.coord.CloseEditor()
		return nil, nil

	case "gutterMouseDown":
		var p gutterParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		surface, err := s.surface(p.URI)
		if err != nil {
			return nil, err
		}
		surface.gutter.Fire(p.Event)
		return nil, nil

	case "addComment":
		var p addCommentParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		s.coord.AddOrToggleCommentAtLine(p.Line, nil)
		return nil, nil

	case "saveDraft":
		var p saveDraftParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		s.coord.SaveDraft(p.Owner, p.ThreadID, p.Text)
		return nil, nil

	case "documentEdit":
		var p documentEditParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		surface, err := s.surface(p.URI)
		if err != nil {
			return nil, err
		}
		surface.shift(p.Line, p.Delta)
		return nil, nil

	case "zoneMeasured":
		var p zoneMeasuredParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		s.mu.Lock()
		z, ok := s.zones[p.Zone]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unknown zone %q", p.Zone)
		}
		z.setMeasured(p.Height)
		return nil, nil

	case "viewports":
		ctx, cancel := context.WithTimeout(context.Background(), viewportsTimeout)
		defer cancel()
		return s.coord.Viewports(ctx)

	default:
		return nil, fmt.Errorf("unknown method %q", m.Method)
	}
}

func (s *editorSession) newSurface(p surfaceParams) *remoteSurface {
	rs := &remoteSurface{
		session:     s,
		uri:         p.URI,
		lineHeight:  p.LineHeight,
		decorations: make(map[string]model.Range),
	}
	s.mu.Lock()
	s.surfaces[p.URI] = rs
	s.mu.Unlock()
	return rs
}

// resetSurfaces forgets the mirrored panes of the previous editor. The
// coordinator still holds them until it has torn their state down.
func (s *editorSession) resetSurfaces() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces = make(map[string]*remoteSurface)
}

func (s *editorSession) surface(uri string) (*remoteSurface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.surfaces[uri]
	if !ok {
		return nil, fmt.Errorf("no open editor for %q", uri)
	}
	return rs, nil
}

// remoteSurface mirrors one editor pane of the client.
type remoteSurface struct {
	session    *editorSession
	uri        string
	lineHeight int
	gutter     model.Emitter[editor.GutterMouseEvent]

	mu          sync.Mutex
	decorations map[string]model.Range
}

var _ editor.Surface = (*remoteSurface)(nil)

func (rs *remoteSurface) URI() string     { return rs.uri }
func (rs *remoteSurface) LineHeight() int { return rs.lineHeight }

func (rs *remoteSurface) AddOrUpdateLineDecoration(handle string, rng model.Range, style editor.DecorationStyle) string {
	if handle == "" {
		handle = uuid.NewString()
	}
	rs.mu.Lock()
	rs.decorations[handle] = rng
	rs.mu.Unlock()

	rs.session.peer.notify("decorationSet", decorationNotice{URI: rs.uri, Handle: handle, Range: &rng, Style: &style})
	return handle
}

func (rs *remoteSurface) RemoveDecoration(handle string) {
	rs.mu.Lock()
	_, ok := rs.decorations[handle]
	delete(rs.decorations, handle)
	rs.mu.Unlock()

	if ok {
		rs.session.peer.notify("decorationRemove", decorationNotice{URI: rs.uri, Handle: handle})
	}
}

func (rs *remoteSurface) DecorationRange(handle string) (model.Range, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.decorations[handle]
	return r, ok
}

func (rs *remoteSurface) OnGutterMouseDown(fn func(editor.GutterMouseEvent)) model.Disposable {
	return rs.gutter.Subscribe(fn)
}

func (rs *remoteSurface) CreateZone() editor.Zone {
	z := &remoteZone{surface: rs, id: uuid.NewString()}
	rs.session.mu.Lock()
	rs.session.zones[z.id] = z
	rs.session.mu.Unlock()

	rs.session.peer.notify("zoneCreate", zoneNotice{URI: rs.uri, Zone: z.id})
	return z
}

// shift moves decorations below line by delta lines, following an edit the
// client made. Decorations never move above line 1.
func (rs *remoteSurface) shift(line, delta int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for h, r := range rs.decorations {
		if r.StartLine <= line {
			continue
		}
		r.StartLine = max(1, r.StartLine+delta)
		r.EndLine = max(r.StartLine, r.EndLine+delta)
		rs.decorations[h] = r
	}
}

// remoteZone mirrors one zone widget of the client.
type remoteZone struct {
	surface *remoteSurface
	id      string

	mu       sync.Mutex
	measured int
}

var _ editor.Zone = (*remoteZone)(nil)

func (z *remoteZone) Show(afterLine, heightInLines int) {
	z.surface.session.peer.notify("zoneShow", zoneNotice{Zone: z.id, AfterLine: afterLine, HeightInLines: heightInLines})
}

func (z *remoteZone) Hide() {
	z.surface.session.peer.notify("zoneHide", zoneNotice{Zone: z.id})
}

// SetContent renders c, sends it to the client and returns the last height the
// client measured for this zone.
func (z *remoteZone) SetContent(c templ.Component) int {
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		z.surface.session.logger.Warn("render zone content failed", "zone", z.id, "error", err)
	}
	z.surface.session.peer.notify("zoneContent", zoneNotice{Zone: z.id, HTML: buf.String()})

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.measured > 0 {
		return z.measured
	}
	return z.surface.lineHeight * defaultZoneLines
}

func (z *remoteZone) Dispose() {
	s := z.surface.session
	s.mu.Lock()
	delete(s.zones, z.id)
	s.mu.Unlock()
	s.peer.notify("zoneDispose", zoneNotice{Zone: z.id})
}

func (z *remoteZone) setMeasured(px int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.measured = px
}
