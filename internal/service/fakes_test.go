package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/repository/boltstore"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/logger"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

type webHandler func(ctx context.Context, req ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error)

// fakeWeb routes requests by URL.
type fakeWeb struct {
	mu       sync.Mutex
	routes   map[string]webHandler
	requests []ports.WebRequest
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{routes: make(map[string]webHandler)}
}

func (f *fakeWeb) Handle(url string, h webHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = h
}

// Respond registers a fixed response.
func (f *fakeWeb) Respond(url string, status int, body string) {
	f.Handle(url, func(_ context.Context, _ ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
		if onProgress != nil {
			onProgress(0.5)
			onProgress(1)
		}
		return &ports.WebResponse{StatusCode: status, Body: []byte(body)}, nil
	})
}

func (f *fakeWeb) Do(ctx context.Context, req ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h, ok := f.routes[req.URL]
	f.mu.Unlock()

	if !ok {
		return &ports.WebResponse{StatusCode: 404}, nil
	}
	return h(ctx, req, onProgress)
}

func (f *fakeWeb) Requests() []ports.WebRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.WebRequest(nil), f.requests...)
}

// fakeSettings returns a mutable source list.
type fakeSettings struct {
	mu      sync.Mutex
	sources []domain.IndexSource
	err     error
}

func (f *fakeSettings) IndexSources() ([]domain.IndexSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.IndexSource(nil), f.sources...), f.err
}

func (f *fakeSettings) Set(sources ...domain.IndexSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = sources
}

// eventRecorder captures every published event in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func recordEvents(bus *eventbus.SyncEventBus) *eventRecorder {
	r := &eventRecorder{}
	bus.SubscribeAll(func(e domain.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) All() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *eventRecorder) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.All() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) Errors() []domain.SongErrorEvent {
	var out []domain.SongErrorEvent
	for _, e := range r.OfType(domain.EventSongError) {
		out = append(out, e.(domain.SongErrorEvent))
	}
	return out
}

func (r *eventRecorder) Finished() []domain.DownloadFinishedEvent {
	var out []domain.DownloadFinishedEvent
	for _, e := range r.OfType(domain.EventDownloadFinished) {
		out = append(out, e.(domain.DownloadFinishedEvent))
	}
	return out
}

func (r *eventRecorder) Progress(uniqueID string) []float64 {
	var out []float64
	for _, e := range r.OfType(domain.EventDownloadProgress) {
		p := e.(domain.DownloadProgressEvent)
		if p.UniqueID == uniqueID {
			out = append(out, p.Progress)
		}
	}
	return out
}

func newTestBus() *eventbus.SyncEventBus {
	bus := eventbus.NewSyncEventBus()
	bus.SetLogger(logger.NewTestLogger())
	return bus
}

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	return boltstore.NewMemoryStore(logger.NewTestLogger(), t.TempDir())
}

// seedSong stores a collection holding only the default variant.
func seedSong(t *testing.T, store ports.NongRepository, gdID int, extra ...domain.Variant) {
	t.Helper()
	n := domain.NewNongs(gdID, domain.NewLocalSong(domain.SongMetadata{
		GDID:     gdID,
		UniqueID: "default",
		Name:     "Original",
		Artist:   "Game",
	}))
	for _, v := range extra {
		require.NoError(t, n.Add(v))
	}
	require.NoError(t, store.SaveNongs(n))
}

// mapValues is an in-memory SavedValueRepository.
type mapValues struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapValues() *mapValues {
	return &mapValues{m: make(map[string][]byte)}
}

func (v *mapValues) LoadValue(key string) ([]byte, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.m[key]
	return data, ok, nil
}

func (v *mapValues) SaveValue(key string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[key] = append([]byte(nil), value...)
	return nil
}
