package service

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// SourceService edits the list of catalog sources. Changes take effect on
// the next catalog refresh.
// All operations are thread-safe via sync.Mutex.
type SourceService struct {
	// Dependencies (injected)
	logger     *slog.Logger
	repository ports.SourceRepository

	// Serializes read-modify-write of the source list
	mu sync.Mutex
}

// NewSourceService creates a new source service.
func NewSourceService(logger *slog.Logger, repository ports.SourceRepository) *SourceService {
	return &SourceService{
		logger:     logger,
		repository: repository,
	}
}

// Sources returns the configured sources in user order.
func (s *SourceService) Sources() ([]domain.IndexSource, error) {
	return s.repository.IndexSources()
}

// Add appends an enabled source. Adding a URL already present fails.
func (s *SourceService) Add(url string) error {
	url = strings.TrimSpace(url)
	if len(url) < minIndexURLLength {
		return domain.NewValidationError("url", url, "index url too short")
	}

	return s.edit(func(sources []domain.IndexSource) ([]domain.IndexSource, error) {
		if indexOfSource(sources, url) >= 0 {
			return nil, domain.NewValidationError("url", url, "index already added")
		}
		return append(sources, domain.IndexSource{URL: url, Enabled: true}), nil
	})
}

// Remove deletes the source with the given URL.
func (s *SourceService) Remove(url string) error {
	return s.edit(func(sources []domain.IndexSource) ([]domain.IndexSource, error) {
		i := indexOfSource(sources, url)
		if i < 0 {
			return nil, fmt.Errorf("%w: index %q", domain.ErrNotFound, url)
		}
		return append(sources[:i], sources[i+1:]...), nil
	})
}

// SetEnabled turns a source on or off without forgetting it.
func (s *SourceService) SetEnabled(url string, enabled bool) error {
	return s.edit(func(sources []domain.IndexSource) ([]domain.IndexSource, error) {
		i := indexOfSource(sources, url)
		if i < 0 {
			return nil, fmt.Errorf("%w: index %q", domain.ErrNotFound, url)
		}
		sources[i].Enabled = enabled
		return sources, nil
	})
}

func (s *SourceService) edit(fn func([]domain.IndexSource) ([]domain.IndexSource, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := s.repository.IndexSources()
	if err != nil {
		return domain.NewServiceError("SourceService", "edit", "failed to read index sources", err)
	}
	updated, err := fn(append([]domain.IndexSource(nil), sources...))
	if err != nil {
		return err
	}
	if err := s.repository.SaveIndexSources(updated); err != nil {
		return domain.NewServiceError("SourceService", "edit", "failed to save index sources", err)
	}

	s.logger.Info("index sources updated", slog.Int("count", len(updated)))
	return nil
}

func indexOfSource(sources []domain.IndexSource, url string) int {
	url = strings.TrimSpace(url)
	for i, src := range sources {
		if src.URL == url {
			return i
		}
	}
	return -1
}
