package editor

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentsync/internal/application"
	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

type fakeDecoration struct {
	rng   model.Range
	style DecorationStyle
}

// fakeSurface is an in-memory editor. Decorations can be moved with
// shiftDecoration to simulate edits.
type fakeSurface struct {
	mu          sync.Mutex
	uri         string
	lineHeight  int
	bodyHeight  int
	nextID      int
	decorations map[string]fakeDecoration
	zones       []*fakeZone
	log         []string
	gutter      model.Emitter[GutterMouseEvent]
}

var _ Surface = (*fakeSurface)(nil)

func newFakeSurface(uri string) *fakeSurface {
	return &fakeSurface{
		uri:         uri,
		lineHeight:  19,
		bodyHeight:  60,
		decorations: make(map[string]fakeDecoration),
	}
}

func (s *fakeSurface) URI() string { return s.uri }

func (s *fakeSurface) AddOrUpdateLineDecoration(handle string, rng model.Range, style DecorationStyle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle == "" {
		s.nextID++
		handle = fmt.Sprintf("d%d", s.nextID)
	}
	s.decorations[handle] = fakeDecoration{rng: rng, style: style}
	return handle
}

func (s *fakeSurface) RemoveDecoration(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decorations, handle)
	s.log = append(s.log, "remove-decoration")
}

func (s *fakeSurface) DecorationRange(handle string) (model.Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decorations[handle]
	return d.rng, ok
}

func (s *fakeSurface) OnGutterMouseDown(fn func(GutterMouseEvent)) model.Disposable {
	return s.gutter.Subscribe(fn)
}

func (s *fakeSurface) LineHeight() int { return s.lineHeight }

func (s *fakeSurface) CreateZone() Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := &fakeZone{surface: s}
	s.zones = append(s.zones, z)
	return z
}

func (s *fakeSurface) click(e GutterMouseEvent) { s.gutter.Fire(e) }

func (s *fakeSurface) shiftDecoration(handle string, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.decorations[handle]
	d.rng.StartLine += lines
	d.rng.EndLine += lines
	s.decorations[handle] = d
}

func (s *fakeSurface) countStyle(className string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.decorations {
		if d.style.ClassName == className {
			n++
		}
	}
	return n
}

func (s *fakeSurface) glyphLines() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, d := range s.decorations {
		if d.style == glyphStyle {
			out = append(out, d.rng.StartLine)
		}
	}
	return out
}

func (s *fakeSurface) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
}

type fakeZone struct {
	surface   *fakeSurface
	shown     bool
	afterLine int
	height    int
	content   string
	disposed  bool
}

func (z *fakeZone) Show(afterLine, heightInLines int) {
	z.surface.mu.Lock()
	defer z.surface.mu.Unlock()
	z.shown, z.afterLine, z.height = true, afterLine, heightInLines
}

func (z *fakeZone) Hide() {
	z.surface.mu.Lock()
	defer z.surface.mu.Unlock()
	z.shown = false
}

func (z *fakeZone) SetContent(c templ.Component) int {
	var buf bytes.Buffer
	_ = c.Render(context.Background(), &buf)

	z.surface.mu.Lock()
	defer z.surface.mu.Unlock()
	z.content = buf.String()
	return z.surface.bodyHeight
}

func (z *fakeZone) Dispose() {
	z.surface.mu.Lock()
	z.disposed = true
	z.surface.mu.Unlock()
	z.surface.record("zone-dispose")
}

func (z *fakeZone) state() (shown bool, height int, content string, disposed bool) {
	z.surface.mu.Lock()
	defer z.surface.mu.Unlock()
	return z.shown, z.height, z.content, z.disposed
}

// echoProvider creates and deletes threads through the host the way a real
// extension answers template and delete requests.
type echoProvider struct {
	host   *application.CommentsHost
	ranges map[string][]model.Range
	block  map[string]chan struct{}
	// createBlock holds template creation on a resource until closed.
	createBlock map[string]chan struct{}

	mu        sync.Mutex
	next      int
	entered   int
	templates []model.Range
	created   []string
}

func (p *echoProvider) ProvideCommentingRanges(ctx context.Context, _ int, resource string) ([]model.Range, error) {
	if ch, ok := p.block[resource]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.ranges[resource], nil
}

func (p *echoProvider) ToggleReaction(context.Context, int, int, string, model.Comment, model.Reaction) error {
	return nil
}

func (p *echoProvider) DeleteCommentThread(_ context.Context, controllerHandle, threadHandle int) error {
	return p.host.DeleteCommentThread(controllerHandle, threadHandle)
}

func (p *echoProvider) CreateCommentThreadTemplate(ctx context.Context, controllerHandle int, resource string, rng model.Range) error {
	p.mu.Lock()
	p.entered++
	p.mu.Unlock()

	if ch, ok := p.createBlock[resource]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	p.next++
	n := p.next
	p.templates = append(p.templates, rng)
	p.created = append(p.created, fmt.Sprintf("%s:%d", resource, rng.StartLine))
	p.mu.Unlock()

	_, err := p.host.CreateCommentThread(controllerHandle, 1000+n, fmt.Sprintf("tmpl-%d", n), resource, rng, "test.ext")
	return err
}

func (p *echoProvider) UpdateCommentThreadTemplate(context.Context, int, int, model.Range) error {
	return nil
}

func (p *echoProvider) createdLines() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.templates))
	for _, r := range p.templates {
		out = append(out, r.StartLine)
	}
	return out
}

func (p *echoProvider) createCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entered
}

func (p *echoProvider) createdAt() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.created)
}

// everywhere is a commenting range covering any realistic document.
var everywhere = []model.Range{{StartLine: 1, StartColumn: 1, EndLine: 10000, EndColumn: 1}}

type harness struct {
	registry *application.CommentRegistry
	host     *application.CommentsHost
	coord    *Coordinator
}

func newHarness(t *testing.T, drafts *memoryDrafts, picker Picker) *harness {
	t.Helper()
	reg := application.NewCommentRegistry(0)
	host := application.NewCommentsHost(reg, time.Second)

	// A nil *memoryDrafts must not become a non-nil DraftStore.
	var c *Coordinator
	if drafts != nil {
		c = NewCoordinator(reg, drafts, picker, nil)
	} else {
		c = NewCoordinator(reg, nil, picker, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		host.Close()
	})
	return &harness{registry: reg, host: host, coord: c}
}

func (h *harness) register(p *echoProvider, id string) int {
	p.host = h.host
	return h.host.RegisterController(p, id, id+" label")
}

func (h *harness) owner(t *testing.T, handle int) string {
	t.Helper()
	c, err := h.host.Controller(handle)
	require.NoError(t, err)
	return c.Owner()
}

func (h *harness) viewports(t *testing.T) []ViewportState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	vs, err := h.coord.Viewports(ctx)
	require.NoError(t, err)
	return vs
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.coord.Flush(ctx))
}

// snapshot is viewports for use inside Eventually conditions, which must not
// call FailNow. It returns nil when the loop does not answer in time.
func (h *harness) snapshot() []ViewportState {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	vs, err := h.coord.Viewports(ctx)
	if err != nil {
		return nil
	}
	return vs
}

func (h *harness) waitViewports(t *testing.T, n int) []ViewportState {
	t.Helper()
	var vs []ViewportState
	require.Eventually(t, func() bool {
		vs = h.snapshot()
		return len(vs) == n
	}, 2*time.Second, 5*time.Millisecond)
	return vs
}

// memoryDrafts is an in-memory driven.DraftStore.
type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]model.Draft
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: make(map[string]model.Draft)}
}

func (m *memoryDrafts) Save(_ context.Context, d model.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ControllerID+"/"+d.ThreadID] = d
	return nil
}

func (m *memoryDrafts) Get(_ context.Context, controllerID, threadID string) (*model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[controllerID+"/"+threadID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memoryDrafts) Delete(_ context.Context, controllerID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, controllerID+"/"+threadID)
	return nil
}

func (m *memoryDrafts) ListByController(_ context.Context, controllerID string) ([]model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Draft
	for _, d := range m.drafts {
		if d.ControllerID == controllerID {
			out = append(out, d)
		}
	}
	return out, nil
}

// scriptedPicker answers every pick with a fixed choice.
type scriptedPicker struct {
	mu      sync.Mutex
	choose  func([]PickOption) (string, bool)
	offered [][]PickOption
}

func (p *scriptedPicker) Pick(_ context.Context, _ int, options []PickOption) (string, bool, error) {
	p.mu.Lock()
	p.offered = append(p.offered, options)
	p.mu.Unlock()
	owner, ok := p.choose(options)
	return owner, ok, nil
}

// waitRanges waits until the coordinator has decorated n commenting ranges on s.
func waitRanges(t *testing.T, s *fakeSurface, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.countStyle(commentingRangeStyle.ClassName) == n
	}, 2*time.Second, 5*time.Millisecond)
}
