// Package prefs stores catalog sources and saved values in fyne preferences,
// for embedding the jukebox into a fyne application.
package prefs

import (
	"encoding/base64"
	"sync"

	"fyne.io/fyne/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

const (
	keyIndexes     = "jukebox.indexes"
	keyValuePrefix = "jukebox.value."
)

type indexSource struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// PreferencesRepository implements ports.SettingsRepository and
// ports.SavedValueRepository on top of fyne.Preferences.
//
// Thread-safe: All operations protected by sync.RWMutex.
type PreferencesRepository struct {
	prefs    fyne.Preferences
	defaults []domain.IndexSource
	mu       sync.RWMutex
}

// NewPreferencesRepository creates a repository. defaults are returned by
// IndexSources until sources are saved explicitly.
func NewPreferencesRepository(prefs fyne.Preferences, defaults []domain.IndexSource) *PreferencesRepository {
	return &PreferencesRepository{
		prefs:    prefs,
		defaults: append([]domain.IndexSource(nil), defaults...),
	}
}

// IndexSources returns the stored catalog sources.
func (r *PreferencesRepository) IndexSources() ([]domain.IndexSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := r.prefs.String(keyIndexes)
	if data == "" {
		return append([]domain.IndexSource(nil), r.defaults...), nil
	}

	var stored []indexSource
	if err := jsoniter.UnmarshalFromString(data, &stored); err != nil {
		return nil, domain.NewRepositoryError("load", "settings", "failed to unmarshal index sources", err)
	}

	sources := make([]domain.IndexSource, 0, len(stored))
	for _, s := range stored {
		sources = append(sources, domain.IndexSource{URL: s.URL, Enabled: s.Enabled})
	}
	return sources, nil
}

// SaveIndexSources replaces the stored catalog sources.
func (r *PreferencesRepository) SaveIndexSources(sources []domain.IndexSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]indexSource, 0, len(sources))
	for _, s := range sources {
		stored = append(stored, indexSource{URL: s.URL, Enabled: s.Enabled})
	}
	data, err := jsoniter.MarshalToString(stored)
	if err != nil {
		return domain.NewRepositoryError("save", "settings", "failed to marshal index sources", err)
	}

	r.prefs.SetString(keyIndexes, data)
	return nil
}

// LoadValue implements ports.SavedValueRepository. Values are kept
// base64-encoded since preferences only hold strings.
func (r *PreferencesRepository) LoadValue(key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	encoded := r.prefs.String(keyValuePrefix + key)
	if encoded == "" {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, domain.NewRepositoryError("load", "values", key, err)
	}
	return data, true, nil
}

// SaveValue implements ports.SavedValueRepository.
func (r *PreferencesRepository) SaveValue(key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.SetString(keyValuePrefix+key, base64.StdEncoding.EncodeToString(value))
	return nil
}

// Clear removes every stored source and value key that is known.
func (r *PreferencesRepository) Clear(valueKeys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(keyIndexes)
	for _, k := range valueKeys {
		r.prefs.RemoveValue(keyValuePrefix + k)
	}
}

var (
	_ ports.SourceRepository     = (*PreferencesRepository)(nil)
	_ ports.SavedValueRepository = (*PreferencesRepository)(nil)
)
