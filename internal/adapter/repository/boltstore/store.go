// Package boltstore persists variant collections and saved values in a
// single bbolt database, with an in-memory cache promoted on read.
package boltstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNongs  = []byte("nongs")
	bucketValues = []byte("values")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store implements ports.NongRepository and ports.SavedValueRepository.
// A Store opened without a database path keeps everything in memory.
type Store struct {
	logger   *slog.Logger
	db       *bolt.DB
	songsDir string

	mu    sync.RWMutex // protects cache
	cache map[string][]byte

	// serializes read-modify-write cycles on collections
	writeMu sync.Mutex
}

// Open opens (or creates) the database at dbPath. Downloaded song files are
// placed under songsDir.
func Open(logger *slog.Logger, dbPath, songsDir string) (*Store, error) {
	if dbPath == "" {
		return NewMemoryStore(logger, songsDir), nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, domain.NewRepositoryError("open", "store", "cannot create data directory", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, domain.NewRepositoryError("open", "store", "failed to open bolt db", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNongs, bucketValues} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, domain.NewRepositoryError("open", "store", "failed to create buckets", err)
	}

	logger.Debug("store opened", slog.String("path", dbPath))
	return &Store{logger: logger, db: db, songsDir: songsDir, cache: make(map[string][]byte)}, nil
}

// NewMemoryStore returns a store without persistence.
func NewMemoryStore(logger *slog.Logger, songsDir string) *Store {
	return &Store{logger: logger, songsDir: songsDir, cache: make(map[string][]byte)}
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) get(bucket []byte, key string) ([]byte, bool, error) {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return data, true, nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return data, true, nil
}

func (s *Store) set(bucket []byte, key string, data []byte) error {
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).Put([]byte(key), data)
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cache[string(bucket)+":"+key] = data
	s.mu.Unlock()
	return nil
}

// === Saved values ===

// LoadValue implements ports.SavedValueRepository.
func (s *Store) LoadValue(key string) ([]byte, bool, error) {
	data, ok, err := s.get(bucketValues, key)
	if err != nil {
		return nil, false, domain.NewRepositoryError("load", "values", key, err)
	}
	return data, ok, nil
}

// SaveValue implements ports.SavedValueRepository.
func (s *Store) SaveValue(key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)
	if err := s.set(bucketValues, key, data); err != nil {
		return domain.NewRepositoryError("save", "values", key, err)
	}
	return nil
}

// === Nongs ===

type variantRecord struct {
	Type        string `json:"type"`
	UniqueID    string `json:"uniqueID"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Path        string `json:"path,omitempty"`
	StartOffset int    `json:"startOffset,omitempty"`
	IndexID     string `json:"indexID,omitempty"`
	URL         string `json:"url,omitempty"`
	YoutubeID   string `json:"ytID,omitempty"`
}

type nongsRecord struct {
	GDID     int             `json:"gdID"`
	Active   string          `json:"active"`
	Default  variantRecord   `json:"default"`
	Variants []variantRecord `json:"variants"`
}

func toRecord(v domain.Variant) variantRecord {
	m := v.Metadata()
	r := variantRecord{
		Type:        v.Type().String(),
		UniqueID:    m.UniqueID,
		Name:        m.Name,
		Artist:      m.Artist,
		Path:        m.Path,
		StartOffset: m.StartOffset,
		IndexID:     v.IndexID(),
	}
	switch s := v.(type) {
	case *domain.HostedSong:
		r.URL = s.URL
	case *domain.YTSong:
		r.YoutubeID = s.YoutubeID
	}
	return r
}

func fromRecord(gdID int, r variantRecord) (domain.Variant, error) {
	meta := domain.SongMetadata{
		GDID:        gdID,
		UniqueID:    r.UniqueID,
		Name:        r.Name,
		Artist:      r.Artist,
		Path:        r.Path,
		StartOffset: r.StartOffset,
	}
	switch r.Type {
	case domain.VariantLocal.String():
		s := domain.NewLocalSong(meta)
		domain.SetIndexID(s, r.IndexID)
		return s, nil
	case domain.VariantHosted.String():
		return domain.NewHostedSong(meta, r.URL, r.IndexID), nil
	case domain.VariantYouTube.String():
		return domain.NewYTSong(meta, r.YoutubeID, r.IndexID), nil
	default:
		return nil, fmt.Errorf("%w: unknown variant type %q", domain.ErrSchema, r.Type)
	}
}

func nongsKey(gdID int) string {
	return strconv.Itoa(gdID)
}

// GetNongs implements ports.NongRepository.
func (s *Store) GetNongs(gdID int) (*domain.Nongs, error) {
	data, ok, err := s.get(bucketNongs, nongsKey(gdID))
	if err != nil {
		return nil, domain.NewRepositoryError("load", "nongs", nongsKey(gdID), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: song %d", domain.ErrNotInitialized, gdID)
	}

	var rec nongsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.NewRepositoryError("load", "nongs", nongsKey(gdID), fmt.Errorf("%w: %v", domain.ErrParse, err))
	}

	def, err := fromRecord(gdID, rec.Default)
	if err != nil {
		return nil, domain.NewRepositoryError("load", "nongs", nongsKey(gdID), err)
	}
	defaultSong, ok := def.(*domain.LocalSong)
	if !ok {
		return nil, domain.NewRepositoryError("load", "nongs", nongsKey(gdID), fmt.Errorf("%w: default variant is not local", domain.ErrSchema))
	}

	nongs := domain.NewNongs(gdID, defaultSong)
	for _, r := range rec.Variants {
		v, err := fromRecord(gdID, r)
		if err != nil {
			s.logger.Warn("skipping stored variant", slog.Int("gd_id", gdID), slog.String("unique_id", r.UniqueID), slog.Any("error", err))
			continue
		}
		if err := nongs.Add(v); err != nil {
			s.logger.Warn("skipping stored variant", slog.Int("gd_id", gdID), slog.String("unique_id", r.UniqueID), slog.Any("error", err))
		}
	}
	if rec.Active != "" {
		_ = nongs.SetActive(rec.Active)
	}
	return nongs, nil
}

// SaveNongs implements ports.NongRepository.
func (s *Store) SaveNongs(nongs *domain.Nongs) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.saveNongs(nongs)
}

func (s *Store) saveNongs(nongs *domain.Nongs) error {
	if nongs == nil || nongs.Default() == nil {
		return domain.NewValidationError("default", nil, "a stored collection needs a default variant")
	}

	rec := nongsRecord{
		GDID:    nongs.GDID(),
		Active:  nongs.ActiveID(),
		Default: toRecord(nongs.Default()),
	}
	for _, v := range nongs.All() {
		if nongs.IsDefault(v) {
			continue
		}
		rec.Variants = append(rec.Variants, toRecord(v))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return domain.NewRepositoryError("save", "nongs", nongsKey(nongs.GDID()), err)
	}
	if err := s.set(bucketNongs, nongsKey(nongs.GDID()), data); err != nil {
		return domain.NewRepositoryError("save", "nongs", nongsKey(nongs.GDID()), err)
	}
	return nil
}

func (s *Store) update(gdID int, fn func(*domain.Nongs) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	nongs, err := s.GetNongs(gdID)
	if err != nil {
		return err
	}
	if err := fn(nongs); err != nil {
		return err
	}
	return s.saveNongs(nongs)
}

// SaveVariant implements ports.NongRepository.
func (s *Store) SaveVariant(gdID int, variant domain.Variant) error {
	return s.update(gdID, func(n *domain.Nongs) error {
		return n.Upsert(variant.Clone())
	})
}

// SetActive implements ports.NongRepository.
func (s *Store) SetActive(gdID int, uniqueID string) error {
	return s.update(gdID, func(n *domain.Nongs) error {
		return n.SetActive(uniqueID)
	})
}

// RemoveVariant deletes a non-default variant. The file it points at is
// removed when it lives inside the songs directory.
func (s *Store) RemoveVariant(gdID int, uniqueID string) error {
	var path string
	err := s.update(gdID, func(n *domain.Nongs) error {
		if v, ok := n.Find(uniqueID); ok {
			path = v.Path()
		}
		return n.Remove(uniqueID)
	})
	if err != nil {
		return err
	}
	if path != "" && s.songsDir != "" && strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.songsDir)+string(filepath.Separator)) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove song file", slog.String("path", path), slog.Any("error", err))
		}
	}
	return nil
}

// SongIDs lists every song with a stored collection, ascending.
func (s *Store) SongIDs() ([]int, error) {
	seen := make(map[int]struct{})

	s.mu.RLock()
	prefix := string(bucketNongs) + ":"
	for k := range s.cache {
		if id, err := strconv.Atoi(strings.TrimPrefix(k, prefix)); err == nil && strings.HasPrefix(k, prefix) {
			seen[id] = struct{}{}
		}
	}
	s.mu.RUnlock()

	if s.db != nil {
		err := s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketNongs).ForEach(func(k, _ []byte) error {
				if id, err := strconv.Atoi(string(k)); err == nil {
					seen[id] = struct{}{}
				}
				return nil
			})
		})
		if err != nil {
			return nil, domain.NewRepositoryError("list", "nongs", "", err)
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// GenerateSongFilePath implements ports.NongRepository.
func (s *Store) GenerateSongFilePath(extension string) (string, error) {
	if err := os.MkdirAll(s.songsDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	ext := strings.TrimPrefix(extension, ".")
	for {
		path := filepath.Join(s.songsDir, uuid.NewString()+"."+ext)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrIO, err)
		}
	}
}

var (
	_ ports.NongRepository       = (*Store)(nil)
	_ ports.SavedValueRepository = (*Store)(nil)
)
