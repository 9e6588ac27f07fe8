// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

// SettingsRepository supplies the user-configured catalog sources.
//
// Thread-safety: Implementations must be thread-safe.
type SettingsRepository interface {
	// IndexSources returns the configured sources in user order.
	IndexSources() ([]domain.IndexSource, error)
}

// SourceRepository is a SettingsRepository whose sources can be edited.
type SourceRepository interface {
	SettingsRepository

	// SaveIndexSources replaces the configured sources.
	SaveIndexSources(sources []domain.IndexSource) error
}

// SavedValueRepository is a byte-oriented store of named JSON values.
// The index name cache is kept here under a fixed key.
//
// Thread-safety: Implementations must be thread-safe.
type SavedValueRepository interface {
	// LoadValue returns the raw value stored under key.
	// If nothing was stored, returns (nil, false, nil).
	LoadValue(key string) ([]byte, bool, error)

	// SaveValue replaces the value stored under key.
	SaveValue(key string, value []byte) error
}

// NongRepository is the local per-song variant store.
//
// Collections returned by GetNongs are copies; changes are persisted only
// through the Save* methods.
//
// Thread-safety: Implementations must be thread-safe.
type NongRepository interface {
	// GetNongs returns the collection for gdID.
	// If the song is unknown, returns domain.ErrNotInitialized.
	GetNongs(gdID int) (*domain.Nongs, error)

	// SaveNongs persists a whole collection, replacing any previous one.
	SaveNongs(nongs *domain.Nongs) error

	// SaveVariant inserts or replaces a non-default variant of a known song.
	SaveVariant(gdID int, variant domain.Variant) error

	// SetActive marks uniqueID as the active variant of gdID.
	SetActive(gdID int, uniqueID string) error

	// GenerateSongFilePath returns a fresh, unused path for a song file
	// with the given extension.
	GenerateSongFilePath(extension string) (string, error)
}
