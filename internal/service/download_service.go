package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

const (
	// DefaultResolverURL is the stream resolver used for YouTube variants.
	DefaultResolverURL = "https://api.cobalt.tools/api/json"

	// DefaultAudioFormat is the requested audio format and file extension.
	DefaultAudioFormat = "mp3"

	youtubeWatchURL = "https://www.youtube.com/watch?v="

	// Stage A of a YouTube download covers [0, resolveShare] of the overall
	// progress, stage B the rest.
	resolveShare = 0.1
)

// VariantFinder resolves a song's variant by unique id.
type VariantFinder interface {
	FindVariant(gdID int, uniqueID string) (domain.Variant, error)
}

// DownloadConfig holds the download pipeline settings.
type DownloadConfig struct {
	ResolverURL string
	AudioFormat string
	Timeout     time.Duration
}

type downloadTask struct {
	gdID     int
	uniqueID string
	cancel   context.CancelFunc
	done     chan struct{}
	progress float64
	finished bool // progress bookkeeping cleared, terminal events pending
}

// DownloadService materializes variants to local files in the background,
// one live task per unique id, and commits finished downloads as the
// song's active variant.
// All operations are thread-safe.
type DownloadService struct {
	// Dependencies (injected)
	logger   *slog.Logger
	web      ports.WebClient
	store    ports.NongRepository
	variants VariantFinder
	bus      ports.EventBus
	probe    ports.AudioProbe

	cfg DownloadConfig

	// State
	tasks  map[string]*downloadTask
	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	// Concurrency control
	startMu sync.Mutex // serializes task replacement
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewDownloadService creates a new download service. probe may be nil.
func NewDownloadService(
	logger *slog.Logger,
	web ports.WebClient,
	store ports.NongRepository,
	variants VariantFinder,
	bus ports.EventBus,
	probe ports.AudioProbe,
	cfg DownloadConfig,
) *DownloadService {
	if cfg.ResolverURL == "" {
		cfg.ResolverURL = DefaultResolverURL
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = DefaultAudioFormat
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &DownloadService{
		logger:   logger,
		web:      web,
		store:    store,
		variants: variants,
		bus:      bus,
		probe:    probe,
		cfg:      cfg,
		tasks:    make(map[string]*downloadTask),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Download looks up the merged variant (gdID, uniqueID) and starts
// downloading it.
func (s *DownloadService) Download(gdID int, uniqueID string) error {
	v, err := s.variants.FindVariant(gdID, uniqueID)
	if err != nil {
		return err
	}
	return s.DownloadVariant(v)
}

// DownloadVariant starts downloading v in the background. A live task for
// the same unique id is cancelled, and its terminal events published,
// before the new task reports zero progress. Event handlers must not start
// downloads synchronously.
func (s *DownloadService) DownloadVariant(v domain.Variant) error {
	if v == nil {
		return domain.NewValidationError("variant", nil, "must not be nil")
	}
	if v.Type() == domain.VariantLocal {
		return fmt.Errorf("%w: can't download local song", domain.ErrUnsupportedOperation)
	}
	meta := v.Metadata()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	old := s.tasks[meta.UniqueID]
	s.mu.RUnlock()
	if closed {
		return domain.ErrClosed
	}

	if old != nil {
		s.logger.Debug("replacing download", slog.String("unique_id", meta.UniqueID))
		old.cancel()
		<-old.done
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	ctx, cancel := context.WithCancel(s.ctx)
	task := &downloadTask{
		gdID:     meta.GDID,
		uniqueID: meta.UniqueID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.tasks[meta.UniqueID] = task
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("download started",
		slog.Int("gd_id", meta.GDID),
		slog.String("unique_id", meta.UniqueID),
		slog.String("type", v.Type().String()))
	s.bus.Publish(domain.NewDownloadProgressEvent(meta.GDID, meta.UniqueID, 0))

	go s.run(ctx, task, v.Clone())
	return nil
}

// Progress returns the progress of the live task for uniqueID.
func (s *DownloadService) Progress(uniqueID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[uniqueID]
	if !ok || task.finished {
		return 0, false
	}
	return task.progress, true
}

// Cancel requests cancellation of the live task for uniqueID and reports
// whether there was one. The task publishes its terminal events
// asynchronously.
func (s *DownloadService) Cancel(uniqueID string) bool {
	s.mu.RLock()
	task, ok := s.tasks[uniqueID]
	live := ok && !task.finished
	s.mu.RUnlock()

	if live {
		task.cancel()
	}
	return live
}

// Wait blocks until the live task for uniqueID, if any, has finished.
func (s *DownloadService) Wait(uniqueID string) {
	s.mu.RLock()
	task, ok := s.tasks[uniqueID]
	s.mu.RUnlock()

	if ok {
		<-task.done
	}
}

// Shutdown cancels every live task and waits for them to finish.
func (s *DownloadService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *DownloadService) run(ctx context.Context, task *downloadTask, v domain.Variant) {
	defer s.wg.Done()

	path, err := s.fetch(ctx, task, v)
	if err == nil && ctx.Err() != nil {
		// Cancelled after the file was written; it is not committed.
		s.removeFile(path)
		err = ctx.Err()
	}
	s.finish(ctx, task, v, path, err)
}

func (s *DownloadService) fetch(ctx context.Context, task *downloadTask, v domain.Variant) (string, error) {
	var data []byte
	var err error

	switch song := v.(type) {
	case *domain.HostedSong:
		data, err = s.fetchHosted(ctx, task, song)
	case *domain.YTSong:
		data, err = s.fetchYouTube(ctx, task, song)
	default:
		err = fmt.Errorf("%w: can't download %s song", domain.ErrUnsupportedOperation, v.Type())
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ErrEmptyResponse
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.store.GenerateSongFilePath(s.cfg.AudioFormat)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: couldn't write %s: %v", domain.ErrIO, path, err)
	}

	if s.probe != nil {
		if info, err := s.probe.Probe(path); err != nil {
			s.logger.Warn("downloaded file is not recognized as audio", slog.String("path", path), slog.Any("error", err))
		} else {
			s.logger.Debug("downloaded file probed",
				slog.String("path", path),
				slog.String("file_type", info.FileType),
				slog.String("title", info.Title))
		}
	}
	return path, nil
}

func (s *DownloadService) fetchHosted(ctx context.Context, task *downloadTask, song *domain.HostedSong) ([]byte, error) {
	resp, err := s.web.Do(ctx, ports.WebRequest{URL: song.URL, Timeout: s.cfg.Timeout}, func(f float64) {
		s.report(task, f)
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: web request failed with status %d", domain.ErrNetwork, resp.StatusCode)
	}
	return resp.Body, nil
}

type resolverResponse struct {
	Status string      `json:"status"`
	URL    interface{} `json:"url"`
}

func (s *DownloadService) fetchYouTube(ctx context.Context, task *downloadTask, song *domain.YTSong) ([]byte, error) {
	if len(song.YoutubeID) != domain.YouTubeIDLength {
		return nil, fmt.Errorf("%w: invalid YouTube ID %q", domain.ErrInvalidVariantReference, song.YoutubeID)
	}

	// Stage A: resolve the video to a stream URL.
	body, err := jsoniter.Marshal(map[string]string{
		"url":         youtubeWatchURL + song.YoutubeID,
		"aFormat":     s.cfg.AudioFormat,
		"isAudioOnly": "true",
	})
	if err != nil {
		return nil, err
	}
	resp, err := s.web.Do(ctx, ports.WebRequest{
		Method: http.MethodPost,
		URL:    s.cfg.ResolverURL,
		Headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
		Body:    body,
		Timeout: s.cfg.Timeout,
	}, func(f float64) {
		s.report(task, f*resolveShare)
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: unable to get resolver metadata response (status %d)", domain.ErrNetwork, resp.StatusCode)
	}

	var resolved resolverResponse
	if err := jsoniter.Unmarshal(resp.Body, &resolved); err != nil {
		return nil, fmt.Errorf("%w: unable to parse resolver metadata response: %v", domain.ErrParse, err)
	}
	if resolved.Status != "stream" {
		return nil, fmt.Errorf("%w: resolver metadata response is not a stream (status %q)", domain.ErrSchema, resolved.Status)
	}
	streamURL, ok := resolved.URL.(string)
	if !ok || streamURL == "" {
		return nil, fmt.Errorf("%w: resolver metadata response has no stream url", domain.ErrSchema)
	}
	s.logger.Debug("resolver returned stream", slog.String("unique_id", task.uniqueID), slog.String("url", streamURL))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage B: fetch the stream.
	resp, err = s.web.Do(ctx, ports.WebRequest{URL: streamURL, Timeout: s.cfg.Timeout}, func(f float64) {
		s.report(task, resolveShare+f*(1-resolveShare))
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: unable to get resolver song response (status %d)", domain.ErrNetwork, resp.StatusCode)
	}
	return resp.Body, nil
}

// report records and publishes progress, never letting it decrease.
func (s *DownloadService) report(task *downloadTask, fraction float64) {
	s.mu.Lock()
	if fraction > 1 {
		fraction = 1
	}
	if fraction < task.progress {
		fraction = task.progress
	}
	task.progress = fraction
	s.mu.Unlock()

	s.bus.Publish(domain.NewDownloadProgressEvent(task.gdID, task.uniqueID, fraction))
}

// finish clears the task's bookkeeping, publishes its outcome and exactly
// one state-changed notification, then releases anyone waiting on it.
func (s *DownloadService) finish(ctx context.Context, task *downloadTask, v domain.Variant, path string, err error) {
	s.mu.Lock()
	task.finished = true
	s.mu.Unlock()

	defer func() {
		task.cancel()
		s.mu.Lock()
		if s.tasks[task.uniqueID] == task {
			delete(s.tasks, task.uniqueID)
		}
		s.mu.Unlock()
		close(task.done)
	}()

	log := s.logger.With(slog.Int("gd_id", task.gdID), slog.String("unique_id", task.uniqueID))

	switch {
	case err != nil && ctx.Err() != nil:
		log.Info("download cancelled")
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to fetch song: cancelled", domain.ErrCancelled))
		s.bus.Publish(domain.NewDownloadFinishedEvent(task.gdID, task.uniqueID, domain.DownloadCancelled, "", domain.ErrCancelled))

	case err != nil:
		log.Warn("download failed", slog.Any("error", err))
		s.bus.Publish(domain.NewSongErrorEvent(true, "Failed to fetch song: "+err.Error(), err))
		s.bus.Publish(domain.NewDownloadFinishedEvent(task.gdID, task.uniqueID, domain.DownloadFailed, "", err))

	default:
		domain.MarkMaterialized(v, path)
		if err := s.commit(task.gdID, v); err != nil {
			log.Warn("failed to set song as active", slog.Any("error", err))
			s.bus.Publish(domain.NewSongErrorEvent(true, "Failed to set song as active: "+err.Error(), err))
			s.bus.Publish(domain.NewDownloadFinishedEvent(task.gdID, task.uniqueID, domain.DownloadFailed, path, err))
			break
		}
		log.Info("download completed", slog.String("path", path))
		s.bus.Publish(domain.NewDownloadFinishedEvent(task.gdID, task.uniqueID, domain.DownloadCompleted, path, nil))
	}

	s.bus.Publish(domain.NewSongStateChangedEvent(task.gdID))
}

func (s *DownloadService) commit(gdID int, v domain.Variant) error {
	if err := s.store.SaveVariant(gdID, v); err != nil {
		return err
	}
	return s.store.SetActive(gdID, v.Metadata().UniqueID)
}

func (s *DownloadService) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove cancelled download", slog.String("path", path), slog.Any("error", err))
	}
}
