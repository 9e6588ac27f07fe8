package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arunsworld/nursery"
	jsoniter "github.com/json-iterator/go"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// IndexNamesKey is the saved-value key holding the {indexID: name} cache.
const IndexNamesKey = "cached-index-names"

const minIndexURLLength = 3

// catalogJSON keeps map keys sorted so cache files are canonical.
var catalogJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// IndexService mirrors the enabled remote catalogs on disk and keeps an
// in-memory table of the variants they describe, keyed by song id.
// All operations are thread-safe via sync.RWMutex.
type IndexService struct {
	// Dependencies (injected)
	logger   *slog.Logger
	web      ports.WebClient
	settings ports.SettingsRepository
	names    ports.SavedValueRepository
	bus      ports.EventBus

	cacheDir string
	timeout  time.Duration

	// State
	initialized   bool
	indexNongs    map[int]*domain.Nongs
	loaded        map[string]domain.IndexMetadata
	generation    uint64
	refreshCancel context.CancelFunc

	// Concurrency control
	mu     sync.RWMutex
	nameMu sync.Mutex // serializes read-modify-write of the name cache
}

// NewIndexService creates a new index service. cacheDir holds one file per
// catalog source.
func NewIndexService(
	logger *slog.Logger,
	web ports.WebClient,
	settings ports.SettingsRepository,
	names ports.SavedValueRepository,
	bus ports.EventBus,
	cacheDir string,
	timeout time.Duration,
) *IndexService {
	return &IndexService{
		logger:     logger,
		web:        web,
		settings:   settings,
		names:      names,
		bus:        bus,
		cacheDir:   cacheDir,
		timeout:    timeout,
		indexNongs: make(map[int]*domain.Nongs),
		loaded:     make(map[string]domain.IndexMetadata),
	}
}

// Initialize prepares the cache directory. On a cold start (directory
// freshly created) nothing is fetched. Otherwise a full refresh runs; a
// failure is reported on the bus and leaves the service uninitialized so a
// later call can retry.
func (s *IndexService) Initialize(ctx context.Context) error {
	s.mu.RLock()
	if s.initialized {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if _, err := os.Stat(s.cacheDir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
			return domain.NewServiceError("IndexService", "Initialize", "cannot create cache directory", fmt.Errorf("%w: %v", domain.ErrIO, err))
		}
		s.logger.Info("index cache created, skipping fetch", slog.String("dir", s.cacheDir))
		return nil
	}

	if err := s.RefreshCatalogs(ctx); err != nil {
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to fetch indexes", err))
		return err
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// Initialized reports whether a refresh has completed after Initialize.
func (s *IndexService) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// RefreshCatalogs clears the index table and refetches every enabled
// source concurrently, blocking until all of them are processed. A refresh
// started while another is running cancels the older one; results of the
// superseded refresh are discarded. Per-source failures are reported on
// the bus and never fail the refresh.
func (s *IndexService) RefreshCatalogs(ctx context.Context) error {
	refreshCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	s.generation++
	gen := s.generation
	s.refreshCancel = cancel
	s.indexNongs = make(map[int]*domain.Nongs)
	s.loaded = make(map[string]domain.IndexMetadata)
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.generation == gen {
			s.refreshCancel = nil
		}
		s.mu.Unlock()
	}()

	sources, err := s.settings.IndexSources()
	if err != nil {
		return domain.NewServiceError("IndexService", "RefreshCatalogs", "failed to read index sources", err)
	}

	var jobs []nursery.ConcurrentJob
	for _, src := range sources {
		s.logger.Debug("index source", slog.String("url", src.URL), slog.Bool("enabled", src.Enabled))
		if !src.Enabled || len(src.URL) < minIndexURLLength {
			continue
		}
		source := src
		jobs = append(jobs, func(context.Context, chan error) {
			s.refreshSource(refreshCtx, gen, source)
		})
	}
	if len(jobs) > 0 {
		if err := nursery.RunConcurrently(jobs...); err != nil {
			return domain.NewServiceError("IndexService", "RefreshCatalogs", "refresh failed", err)
		}
	}

	if err := refreshCtx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	loaded, songs := len(s.loaded), len(s.indexNongs)
	s.mu.RUnlock()

	s.logger.Info("index refresh completed",
		slog.Int("sources", len(jobs)),
		slog.Int("loaded", loaded),
		slog.Int("songs", songs))
	s.bus.Publish(domain.NewIndexRefreshCompletedEvent(len(jobs), loaded, songs))
	return nil
}

// CacheFilePath returns the cache file used for a catalog URL.
func (s *IndexService) CacheFilePath(url string) string {
	return filepath.Join(s.cacheDir, cacheFileName(url))
}

func cacheFileName(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:8]) + ".json"
}

func (s *IndexService) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

func (s *IndexService) refreshSource(ctx context.Context, gen uint64, src domain.IndexSource) {
	path := s.CacheFilePath(src.URL)
	s.logger.Info("fetching index", slog.String("url", src.URL))

	if err := s.fetchCatalog(ctx, gen, src.URL, path); err != nil {
		if ctx.Err() != nil || !s.current(gen) {
			s.logger.Debug("index fetch superseded", slog.String("url", src.URL))
			return
		}
		catErr := domain.NewCatalogError("fetch", src.URL, err)
		s.logger.Warn("failed to fetch index", slog.Any("error", catErr))
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to fetch index: "+err.Error(), catErr))
	} else {
		s.logger.Info("index fetched and cached", slog.String("url", src.URL))
	}

	if !s.current(gen) {
		return
	}
	if err := s.loadCatalog(gen, path); err != nil {
		catErr := domain.NewCatalogError("load", path, err)
		s.logger.Warn("failed to load index", slog.Any("error", catErr))
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to load index: "+err.Error(), catErr))
	}
}

// fetchCatalog downloads one catalog, injects its origin URL, validates it
// and overwrites the cache file with the canonical serialization. The cache
// file is left untouched on any failure or once the refresh is superseded.
func (s *IndexService) fetchCatalog(ctx context.Context, gen uint64, url, path string) error {
	resp, err := s.web.Do(ctx, ports.WebRequest{URL: url, Timeout: s.timeout}, nil)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: web request failed with status %d", domain.ErrNetwork, resp.StatusCode)
	}

	var doc interface{}
	if err := catalogJSON.Unmarshal(resp.Body, &doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: index supposed to be an object", domain.ErrParse)
	}
	obj["url"] = url

	canonical, err := catalogJSON.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if _, err := decodeCatalogHeader(canonical); err != nil {
		return err
	}

	// Holding the read lock keeps a newer refresh from starting mid-write.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.generation != gen {
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(path, canonical)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: couldn't open file: %v", domain.ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

// LoadCatalogFile parses a cached catalog into the index table.
func (s *IndexService) LoadCatalogFile(path string) error {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	return s.loadCatalog(gen, path)
}

// LoadCachedCatalogs loads the cache file of every enabled source without
// touching the network and returns how many were loaded. Sources never
// fetched are skipped; unreadable files are reported on the bus.
func (s *IndexService) LoadCachedCatalogs() (int, error) {
	sources, err := s.settings.IndexSources()
	if err != nil {
		return 0, domain.NewServiceError("IndexService", "LoadCachedCatalogs", "failed to read index sources", err)
	}

	loaded := 0
	for _, src := range sources {
		if !src.Enabled || len(src.URL) < minIndexURLLength {
			continue
		}
		path := s.CacheFilePath(src.URL)
		if err := s.LoadCatalogFile(path); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			catErr := domain.NewCatalogError("load", path, err)
			s.logger.Warn("failed to load index", slog.Any("error", catErr))
			s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to load index: "+err.Error(), catErr))
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (s *IndexService) loadCatalog(gen uint64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: index file does not exist", domain.ErrNotFound)
		}
		return fmt.Errorf("%w: couldn't open file %s: %v", domain.ErrIO, filepath.Base(path), err)
	}

	parsed, err := parseCatalog(data)
	if err != nil {
		return err
	}
	for _, entryErr := range parsed.skipped {
		s.logger.Warn("skipping index entry", slog.String("index", parsed.index.ID), slog.Any("error", entryErr))
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to add song from index: "+entryErr.Error(), entryErr))
	}

	// One critical section per catalog: readers see none or all of it.
	added := 0
	var rejected []error
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.cacheIndexName(parsed.index.ID, parsed.index.Name)
	for _, entry := range parsed.entries {
		for _, gdID := range entry.SongIDs {
			nongs, ok := s.indexNongs[gdID]
			if !ok {
				nongs = domain.NewNongs(gdID, nil)
				s.indexNongs[gdID] = nongs
			}
			if err := nongs.Add(entry.variant(gdID)); err != nil {
				rejected = append(rejected, err)
				continue
			}
			added++
		}
	}
	s.loaded[parsed.index.ID] = parsed.index
	total := len(s.indexNongs)
	s.mu.Unlock()

	for _, err := range rejected {
		s.logger.Warn("skipping index variant", slog.String("index", parsed.index.ID), slog.Any("error", err))
		s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to add song from index: "+err.Error(), err))
	}

	s.logger.Info("index loaded",
		slog.String("name", parsed.index.Name),
		slog.String("id", parsed.index.ID),
		slog.Int("variants", added),
		slog.Int("total_songs", total))
	s.bus.Publish(domain.NewIndexLoadedEvent(parsed.index, added))
	return nil
}

func (s *IndexService) cacheIndexName(id, name string) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	names := make(map[string]string)
	if data, ok, err := s.names.LoadValue(IndexNamesKey); err != nil {
		s.logger.Warn("failed to read index name cache", slog.Any("error", err))
	} else if ok {
		if err := jsoniter.Unmarshal(data, &names); err != nil {
			s.logger.Warn("index name cache is corrupt, resetting", slog.Any("error", err))
			names = make(map[string]string)
		}
	}

	names[id] = name
	data, err := catalogJSON.Marshal(names)
	if err != nil {
		s.logger.Warn("failed to encode index name cache", slog.Any("error", err))
		return
	}
	if err := s.names.SaveValue(IndexNamesKey, data); err != nil {
		s.logger.Warn("failed to save index name cache", slog.Any("error", err))
	}
}

// LookupDisplayName returns the cached name of a catalog. It never fetches.
func (s *IndexService) LookupDisplayName(indexID string) (string, bool) {
	data, ok, err := s.names.LoadValue(IndexNamesKey)
	if err != nil || !ok {
		return "", false
	}
	var names map[string]string
	if err := jsoniter.Unmarshal(data, &names); err != nil {
		return "", false
	}
	name, ok := names[indexID]
	return name, ok
}

// IndexNongs returns a copy of the index-sourced collection for gdID.
func (s *IndexService) IndexNongs(gdID int) (*domain.Nongs, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nongs, ok := s.indexNongs[gdID]
	if !ok {
		return nil, false
	}
	return nongs.Clone(), true
}

// LoadedIndexes returns the catalogs loaded by the current refresh, by id.
func (s *IndexService) LoadedIndexes() []domain.IndexMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.IndexMetadata, 0, len(s.loaded))
	for _, m := range s.loaded {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown cancels a running refresh.
func (s *IndexService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
}
