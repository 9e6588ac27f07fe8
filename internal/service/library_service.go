package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// LocalLibrary is the local store as seen by the library service.
type LocalLibrary interface {
	ports.NongRepository
	RemoveVariant(gdID int, uniqueID string) error
}

// ImportOptions controls how a file becomes a local variant. Empty Name
// and Artist fall back to the file's tags, then to the file name.
type ImportOptions struct {
	Name        string
	Artist      string
	StartOffset int

	// AsDefault creates the song's collection with this file as its
	// default; the song must not have one yet.
	AsDefault bool

	// Activate marks the imported variant active.
	Activate bool
}

// LibraryService manages local variants: importing audio files from disk,
// removing variants and choosing the active one.
// All operations are thread-safe via sync.RWMutex.
type LibraryService struct {
	// Dependencies (injected)
	logger *slog.Logger
	store  LocalLibrary
	probe  ports.AudioProbe
	bus    ports.EventBus

	// State
	scanning      bool
	cancelScan    context.CancelFunc
	supportedExts []string

	// Concurrency control
	mu sync.RWMutex
}

// NewLibraryService creates a new library service.
func NewLibraryService(
	logger *slog.Logger,
	store LocalLibrary,
	probe ports.AudioProbe,
	bus ports.EventBus,
) *LibraryService {
	return &LibraryService{
		logger: logger,
		store:  store,
		probe:  probe,
		bus:    bus,
		// Containers dhowden/tag can identify
		supportedExts: []string{
			".mp3",
			".ogg", ".oga",
			".flac",
			".m4a", ".m4b", ".mp4", ".aac",
			".dsf",
		},
	}
}

// ImportFile adds the audio file at path to gdID as a local variant. The
// file is referenced in place, not copied.
func (s *LibraryService) ImportFile(gdID int, path string, opts ImportOptions) (*domain.LocalSong, error) {
	song, err := s.localSong(gdID, path, opts)
	if err != nil {
		return nil, err
	}

	if opts.AsDefault {
		err = s.importDefault(song)
	} else {
		err = s.importVariant(song, opts.Activate)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("song imported",
		slog.Int("gd_id", gdID),
		slog.String("unique_id", song.Metadata().UniqueID),
		slog.String("path", song.Path()))
	s.bus.Publish(domain.NewSongStateChangedEvent(gdID))
	return song, nil
}

func (s *LibraryService) localSong(gdID int, path string, opts ImportOptions) (*domain.LocalSong, error) {
	if !s.IsFormatSupported(path) {
		return nil, fmt.Errorf("%w: unsupported audio format %q", domain.ErrUnsupportedOperation, filepath.Ext(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	info, err := s.probe.Probe(abs)
	if err != nil {
		return nil, err
	}

	name := firstNonEmpty(opts.Name, info.Title, strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)))
	artist := firstNonEmpty(opts.Artist, info.Artist)

	return domain.NewLocalSong(domain.SongMetadata{
		GDID:        gdID,
		UniqueID:    uuid.NewString(),
		Name:        name,
		Artist:      artist,
		Path:        abs,
		StartOffset: opts.StartOffset,
	}), nil
}

func (s *LibraryService) importDefault(song *domain.LocalSong) error {
	gdID := song.Metadata().GDID
	_, err := s.store.GetNongs(gdID)
	switch {
	case err == nil:
		return domain.NewValidationError("default", gdID, "song already has a default")
	case !errors.Is(err, domain.ErrNotInitialized):
		return domain.NewServiceError("LibraryService", "ImportFile", "failed to get nongs", err)
	}
	return s.store.SaveNongs(domain.NewNongs(gdID, song))
}

func (s *LibraryService) importVariant(song *domain.LocalSong, activate bool) error {
	gdID := song.Metadata().GDID
	if err := s.store.SaveVariant(gdID, song); err != nil {
		return err
	}
	if activate {
		return s.store.SetActive(gdID, song.Metadata().UniqueID)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ImportFolder imports every supported file under folderPath as a variant
// of gdID. Files that cannot be imported are reported on the bus and
// skipped. Only one folder import runs at a time.
func (s *LibraryService) ImportFolder(ctx context.Context, gdID int, folderPath string) ([]*domain.LocalSong, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, domain.NewServiceError("LibraryService", "ImportFolder", "scan already in progress", nil)
	}
	s.scanning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancelScan = cancel
	s.mu.Unlock()

	// Ensure cleanup
	defer func() {
		cancel()
		s.mu.Lock()
		s.scanning = false
		s.cancelScan = nil
		s.mu.Unlock()
	}()

	files, err := s.collectAudioFiles(ctx, folderPath)
	if err != nil {
		return nil, err
	}

	songs := make([]*domain.LocalSong, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return songs, err
		}

		song, err := s.ImportFile(gdID, path, ImportOptions{})
		if err != nil {
			s.logger.Warn("skipping file", slog.String("path", path), slog.Any("error", err))
			s.bus.Publish(domain.NewSongErrorEvent(false, "Failed to import "+filepath.Base(path)+": "+err.Error(), err))
			continue
		}
		songs = append(songs, song)
	}
	return songs, nil
}

// CancelScan cancels the running folder import.
func (s *LibraryService) CancelScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return domain.NewServiceError("LibraryService", "CancelScan", "no scan in progress", nil)
	}
	if s.cancelScan != nil {
		s.cancelScan()
	}
	return nil
}

// IsScanning returns true if a folder import is in progress.
func (s *LibraryService) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// Remove deletes a non-default local variant.
func (s *LibraryService) Remove(gdID int, uniqueID string) error {
	if err := s.store.RemoveVariant(gdID, uniqueID); err != nil {
		return err
	}
	s.bus.Publish(domain.NewSongStateChangedEvent(gdID))
	return nil
}

// Activate marks a stored variant as the one in use.
func (s *LibraryService) Activate(gdID int, uniqueID string) error {
	if err := s.store.SetActive(gdID, uniqueID); err != nil {
		return err
	}
	s.bus.Publish(domain.NewSongStateChangedEvent(gdID))
	return nil
}

// IsFormatSupported checks if a file format is supported.
func (s *LibraryService) IsFormatSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, supported := range s.supportedExts {
		if ext == supported {
			return true
		}
	}
	return false
}

// GetSupportedFormats returns the list of supported file extensions.
func (s *LibraryService) GetSupportedFormats() []string {
	formats := make([]string, len(s.supportedExts))
	copy(formats, s.supportedExts)
	return formats
}

// collectAudioFiles recursively collects all audio files in a directory.
func (s *LibraryService) collectAudioFiles(ctx context.Context, folderPath string) ([]string, error) {
	if _, err := os.Stat(folderPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, folderPath)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	var files []string
	err := filepath.WalkDir(folderPath, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Skip entries we can't access
			return nil
		}
		if !d.IsDir() && s.IsFormatSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Shutdown cancels a running folder import.
func (s *LibraryService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning && s.cancelScan != nil {
		s.cancelScan()
	}
}
