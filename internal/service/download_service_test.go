package service

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/repository/boltstore"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/logger"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
	"github.com/tejashwikalptaru/gojukebox/internal/testutil"
)

const (
	testResolver = "https://resolver.example/api/json"
	streamURL    = "https://stream.example/audio"
	hostedURL    = "https://h.example/song.mp3"
	songData     = "ID3 fake audio payload"
)

type downloadFixture struct {
	svc      *DownloadService
	web      *fakeWeb
	store    *boltstore.Store
	index    staticIndex
	events   *eventRecorder
	songsDir string
}

func newDownloadFixture(t *testing.T, index staticIndex) *downloadFixture {
	t.Helper()
	songsDir := t.TempDir()
	store := boltstore.NewMemoryStore(logger.NewTestLogger(), songsDir)
	seedSong(t, store, 42)

	bus := newTestBus()
	f := &downloadFixture{
		web:      newFakeWeb(),
		store:    store,
		index:    index,
		events:   recordEvents(bus),
		songsDir: songsDir,
	}
	variants := NewVariantService(logger.NewTestLogger(), store, index)
	f.svc = NewDownloadService(logger.NewTestLogger(), f.web, store, variants, bus, nil, DownloadConfig{
		ResolverURL: testResolver,
		Timeout:     time.Second,
	})
	t.Cleanup(f.svc.Shutdown)
	return f
}

func (f *downloadFixture) stateChanges() int {
	return len(f.events.OfType(domain.EventSongStateChanged))
}

func (f *downloadFixture) songFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.songsDir)
	require.NoError(t, err)
	return entries
}

func assertNonDecreasing(t *testing.T, progress []float64) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress decreased at %d: %v", i, progress)
	}
	for _, p := range progress {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func hostedVariant(uniqueID, url string) *domain.HostedSong {
	return domain.NewHostedSong(meta(42, uniqueID, "Hosted "+uniqueID), url, "index-b")
}

func TestDownloadService_HostedSuccess(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	original := hostedVariant("b1", hostedURL)
	f := newDownloadFixture(t, indexTable(t, 42, original))
	f.web.Respond(hostedURL, 200, songData)

	require.NoError(t, f.svc.Download(42, "b1"))
	f.svc.Wait("b1")

	progress := f.events.Progress("b1")
	require.NotEmpty(t, progress)
	assert.Equal(t, 0.0, progress[0], "start publishes zero progress")
	assert.Equal(t, 1.0, progress[len(progress)-1])
	assertNonDecreasing(t, progress)

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadCompleted, finished[0].Outcome)
	assert.Empty(t, f.events.Errors())
	assert.Equal(t, 1, f.stateChanges())

	data, err := os.ReadFile(finished[0].Path)
	require.NoError(t, err)
	assert.Equal(t, songData, string(data))

	nongs, err := f.store.GetNongs(42)
	require.NoError(t, err)
	assert.Equal(t, "b1", nongs.ActiveID())
	active := nongs.Active()
	assert.Equal(t, finished[0].Path, active.Path())
	assert.Equal(t, "b1", active.IndexID(), "provenance marker is the variant's own id")

	assert.Empty(t, original.Path(), "the index instance is not mutated")
	assert.Equal(t, "index-b", original.IndexID())

	_, live := f.svc.Progress("b1")
	assert.False(t, live)
}

func TestDownloadService_LocalVariantUnsupported(t *testing.T) {
	f := newDownloadFixture(t, staticIndex{})

	err := f.svc.DownloadVariant(domain.NewLocalSong(meta(42, "l", "Local")))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedOperation))

	err = f.svc.Download(42, "default")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedOperation))
	assert.Empty(t, f.events.All())
}

func TestDownloadService_UnknownReferences(t *testing.T) {
	f := newDownloadFixture(t, staticIndex{})

	err := f.svc.Download(42, "nope")
	assert.True(t, errors.Is(err, domain.ErrInvalidVariantReference))

	err = f.svc.Download(7, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotInitialized))
}

func TestDownloadService_ShortYouTubeIDFailsWithoutNetwork(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	v := domain.NewYTSong(meta(42, "y", "Short"), "short", "c")

	require.NoError(t, f.svc.DownloadVariant(v))
	f.svc.Wait("y")

	assert.Empty(t, f.web.Requests())

	errs := f.events.Errors()
	require.Len(t, errs, 1)
	assert.True(t, errs[0].UserFacing)
	assert.True(t, errors.Is(errs[0].Err, domain.ErrInvalidVariantReference))

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadFailed, finished[0].Outcome)
	assert.Equal(t, 1, f.stateChanges())
}

func TestDownloadService_YouTubeTwoStages(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	f.web.Handle(testResolver, func(_ context.Context, req ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
		onProgress(0.5)
		onProgress(1)
		return &ports.WebResponse{StatusCode: 200, Body: []byte(`{"status":"stream","url":"` + streamURL + `"}`)}, nil
	})
	f.web.Respond(streamURL, 200, songData)

	v := domain.NewYTSong(meta(42, "a1", "X"), "dQw4w9WgXcQ", "index-a")
	require.NoError(t, f.svc.DownloadVariant(v))
	f.svc.Wait("a1")

	requests := f.web.Requests()
	require.Len(t, requests, 2)

	resolve := requests[0]
	assert.Equal(t, "POST", resolve.Method)
	assert.Equal(t, testResolver, resolve.URL)
	assert.Equal(t, "application/json", resolve.Headers["Accept"])
	assert.Equal(t, "application/json", resolve.Headers["Content-Type"])

	var body map[string]string
	require.NoError(t, jsoniter.Unmarshal(resolve.Body, &body))
	assert.Equal(t, map[string]string{
		"url":         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"aFormat":     "mp3",
		"isAudioOnly": "true",
	}, body)

	assert.Equal(t, streamURL, requests[1].URL)

	progress := f.events.Progress("a1")
	assert.InDeltaSlice(t, []float64{0, 0.05, 0.1, 0.55, 1}, progress, 1e-9)
	assertNonDecreasing(t, progress)

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadCompleted, finished[0].Outcome)
	assert.Equal(t, ".mp3", finished[0].Path[len(finished[0].Path)-4:])

	nongs, err := f.store.GetNongs(42)
	require.NoError(t, err)
	assert.Equal(t, "a1", nongs.ActiveID())
	assert.Equal(t, 1, f.stateChanges())
}

func TestDownloadService_YouTubeResolverFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not a stream", 200, `{"status":"error","text":"nope"}`, domain.ErrSchema},
		{"missing url", 200, `{"status":"stream"}`, domain.ErrSchema},
		{"url not a string", 200, `{"status":"stream","url":5}`, domain.ErrSchema},
		{"bad json", 200, `<html>`, domain.ErrParse},
		{"http failure", 502, `{}`, domain.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDownloadFixture(t, staticIndex{})
			f.web.Respond(testResolver, tt.status, tt.body)

			require.NoError(t, f.svc.DownloadVariant(domain.NewYTSong(meta(42, "a1", "X"), "dQw4w9WgXcQ", "c")))
			f.svc.Wait("a1")

			assert.Len(t, f.web.Requests(), 1, "stage B never starts")
			errs := f.events.Errors()
			require.Len(t, errs, 1)
			assert.True(t, errors.Is(errs[0].Err, tt.wantErr), "got %v", errs[0].Err)
			assert.Equal(t, 1, f.stateChanges())
			assert.Empty(t, f.songFiles(t))
		})
	}
}

// resolvesTo answers the resolver with a stream pointing at url.
func resolvesTo(url string) webHandler {
	return func(_ context.Context, _ ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
		onProgress(1)
		return &ports.WebResponse{StatusCode: 200, Body: []byte(`{"status":"stream","url":"` + url + `"}`)}, nil
	}
}

// blockUntilCancelled reports partial progress, signals started and waits
// for the task to be cancelled.
func blockUntilCancelled(started chan<- struct{}, partial float64) webHandler {
	return func(ctx context.Context, _ ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
		onProgress(partial)
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestDownloadService_YouTubeStageOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		resolver     func(started chan<- struct{}) webHandler
		stream       func(started chan<- struct{}) webHandler
		cancel       bool
		wantOutcome  domain.DownloadOutcome
		wantErr      error
		wantRequests int
		wantProgress []float64
	}{
		{
			name:         "cancel while resolving",
			resolver:     func(started chan<- struct{}) webHandler { return blockUntilCancelled(started, 0.5) },
			cancel:       true,
			wantOutcome:  domain.DownloadCancelled,
			wantErr:      domain.ErrCancelled,
			wantRequests: 1,
			wantProgress: []float64{0, 0.05},
		},
		{
			name:         "cancel while streaming",
			resolver:     func(chan<- struct{}) webHandler { return resolvesTo(streamURL) },
			stream:       func(started chan<- struct{}) webHandler { return blockUntilCancelled(started, 0.2) },
			cancel:       true,
			wantOutcome:  domain.DownloadCancelled,
			wantErr:      domain.ErrCancelled,
			wantRequests: 2,
			wantProgress: []float64{0, 0.1, 0.28},
		},
		{
			name:     "stream server error",
			resolver: func(chan<- struct{}) webHandler { return resolvesTo(streamURL) },
			stream: func(chan<- struct{}) webHandler {
				return func(context.Context, ports.WebRequest, ports.ProgressFunc) (*ports.WebResponse, error) {
					return &ports.WebResponse{StatusCode: 503, Body: []byte("unavailable")}, nil
				}
			},
			wantOutcome:  domain.DownloadFailed,
			wantErr:      domain.ErrNetwork,
			wantRequests: 2,
			wantProgress: []float64{0, 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer testutil.VerifyNoLeaks(t)

			f := newDownloadFixture(t, staticIndex{})
			started := make(chan struct{})
			f.web.Handle(testResolver, tt.resolver(started))
			if tt.stream != nil {
				f.web.Handle(streamURL, tt.stream(started))
			}

			require.NoError(t, f.svc.DownloadVariant(domain.NewYTSong(meta(42, "a1", "X"), "dQw4w9WgXcQ", "index-a")))
			if tt.cancel {
				<-started
				assert.True(t, f.svc.Cancel("a1"))
			}
			f.svc.Wait("a1")

			assert.Len(t, f.web.Requests(), tt.wantRequests)

			finished := f.events.Finished()
			require.Len(t, finished, 1, "exactly one terminal event")
			assert.Equal(t, tt.wantOutcome, finished[0].Outcome)
			assert.ErrorIs(t, finished[0].Err, tt.wantErr)

			progress := f.events.Progress("a1")
			assert.InDeltaSlice(t, tt.wantProgress, progress, 1e-9)
			assertNonDecreasing(t, progress)

			assert.Equal(t, 1, f.stateChanges())
			assert.Empty(t, f.songFiles(t), "no file written")
			_, live := f.svc.Progress("a1")
			assert.False(t, live, "progress bookkeeping is cleared")

			nongs, err := f.store.GetNongs(42)
			require.NoError(t, err)
			assert.Equal(t, "default", nongs.ActiveID())
		})
	}
}

func TestDownloadService_HostedHTTPFailure(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	f.web.Respond(hostedURL, 404, "not found")

	require.NoError(t, f.svc.DownloadVariant(hostedVariant("b1", hostedURL)))
	f.svc.Wait("b1")

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadFailed, finished[0].Outcome)
	assert.True(t, errors.Is(finished[0].Err, domain.ErrNetwork))

	errs := f.events.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Failed to fetch song")

	assert.Empty(t, f.songFiles(t), "no file written")
	_, live := f.svc.Progress("b1")
	assert.False(t, live, "progress bookkeeping is cleared")
	assert.Equal(t, 1, f.stateChanges())

	nongs, err := f.store.GetNongs(42)
	require.NoError(t, err)
	assert.Equal(t, "default", nongs.ActiveID())
}

func TestDownloadService_EmptyBody(t *testing.T) {
	f := newDownloadFixture(t, staticIndex{})
	f.web.Respond(hostedURL, 200, "")

	require.NoError(t, f.svc.DownloadVariant(hostedVariant("b1", hostedURL)))
	f.svc.Wait("b1")

	errs := f.events.Errors()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0].Err, domain.ErrEmptyResponse))
	assert.Empty(t, f.songFiles(t))
	assert.Equal(t, 1, f.stateChanges())

	nongs, err := f.store.GetNongs(42)
	require.NoError(t, err)
	assert.Equal(t, 1, nongs.Len(), "nothing committed")
}

func TestDownloadService_CommitFailureKeepsFile(t *testing.T) {
	f := newDownloadFixture(t, staticIndex{})
	f.web.Respond(hostedURL, 200, songData)

	// Song 77 is unknown to the local store.
	v := domain.NewHostedSong(meta(77, "h", "Orphan"), hostedURL, "")
	require.NoError(t, f.svc.DownloadVariant(v))
	f.svc.Wait("h")

	errs := f.events.Errors()
	require.Len(t, errs, 1)
	assert.True(t, errs[0].UserFacing)
	assert.Contains(t, errs[0].Message, "Failed to set song as active")
	assert.True(t, errors.Is(errs[0].Err, domain.ErrNotInitialized))

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadFailed, finished[0].Outcome)
	_, err := os.Stat(finished[0].Path)
	assert.NoError(t, err, "the written file is not removed")
	assert.Equal(t, 1, f.stateChanges())
}

// blockingOnce blocks the first request until it is cancelled and answers
// later ones immediately.
func blockingOnce(started chan<- struct{}) webHandler {
	var calls atomic.Int32
	return func(ctx context.Context, _ ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
		if calls.Add(1) == 1 {
			onProgress(0.3)
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		onProgress(1)
		return &ports.WebResponse{StatusCode: 200, Body: []byte(songData)}, nil
	}
}

func TestDownloadService_RestartCancelsPreviousTask(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	started := make(chan struct{})
	f.web.Handle(hostedURL, blockingOnce(started))

	v := hostedVariant("b1", hostedURL)
	require.NoError(t, f.svc.DownloadVariant(v))
	<-started

	p, live := f.svc.Progress("b1")
	assert.True(t, live)
	assert.Equal(t, 0.3, p)

	require.NoError(t, f.svc.DownloadVariant(v))
	f.svc.Wait("b1")

	var cancelledAt, restartAt = -1, -1
	zeros := 0
	for i, e := range f.events.All() {
		switch ev := e.(type) {
		case domain.DownloadFinishedEvent:
			if ev.Outcome == domain.DownloadCancelled && cancelledAt < 0 {
				cancelledAt = i
			}
		case domain.DownloadProgressEvent:
			if ev.Progress == 0 {
				zeros++
				if zeros == 2 {
					restartAt = i
				}
			}
		}
	}
	require.GreaterOrEqual(t, cancelledAt, 0, "first task reports cancellation")
	require.GreaterOrEqual(t, restartAt, 0, "second task reports zero progress")
	assert.Less(t, cancelledAt, restartAt)

	finished := f.events.Finished()
	require.Len(t, finished, 2)
	assert.Equal(t, domain.DownloadCancelled, finished[0].Outcome)
	assert.Equal(t, domain.DownloadCompleted, finished[1].Outcome)
	assert.Equal(t, 2, f.stateChanges(), "one state change per task")

	errs := f.events.Errors()
	require.Len(t, errs, 1)
	assert.False(t, errs[0].UserFacing)
	assert.Equal(t, "Failed to fetch song: cancelled", errs[0].Message)

	assert.Len(t, f.songFiles(t), 1)
}

func TestDownloadService_Cancel(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	started := make(chan struct{})
	f.web.Handle(hostedURL, blockingOnce(started))

	require.NoError(t, f.svc.DownloadVariant(hostedVariant("b1", hostedURL)))
	<-started

	assert.True(t, f.svc.Cancel("b1"))
	f.svc.Wait("b1")
	assert.False(t, f.svc.Cancel("b1"))

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadCancelled, finished[0].Outcome)
	assert.True(t, errors.Is(finished[0].Err, domain.ErrCancelled))
	assert.Equal(t, 1, f.stateChanges())
	assert.Empty(t, f.songFiles(t))
}

func TestDownloadService_ShutdownCancelsAndRejects(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	started := make(chan struct{})
	f.web.Handle(hostedURL, blockingOnce(started))

	require.NoError(t, f.svc.DownloadVariant(hostedVariant("b1", hostedURL)))
	<-started

	f.svc.Shutdown()

	finished := f.events.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, domain.DownloadCancelled, finished[0].Outcome)

	err := f.svc.DownloadVariant(hostedVariant("b1", hostedURL))
	assert.True(t, errors.Is(err, domain.ErrClosed))
}

func TestDownloadService_ConcurrentDistinctTasks(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newDownloadFixture(t, staticIndex{})
	f.web.Respond(hostedURL, 200, songData)
	f.web.Respond(hostedURL+"?2", 200, songData)

	require.NoError(t, f.svc.DownloadVariant(hostedVariant("one", hostedURL)))
	require.NoError(t, f.svc.DownloadVariant(hostedVariant("two", hostedURL+"?2")))
	f.svc.Wait("one")
	f.svc.Wait("two")

	finished := f.events.Finished()
	require.Len(t, finished, 2)
	for _, e := range finished {
		assert.Equal(t, domain.DownloadCompleted, e.Outcome)
	}
	assert.Len(t, f.songFiles(t), 2)
	assertNonDecreasing(t, f.events.Progress("one"))
	assertNonDecreasing(t, f.events.Progress("two"))
}
