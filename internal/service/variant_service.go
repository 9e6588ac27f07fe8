package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// IndexTable is the read side of the index service used for merging.
type IndexTable interface {
	IndexNongs(gdID int) (*domain.Nongs, bool)
}

// VariantService merges local and index-sourced variants of a song into
// one deterministically ordered list.
type VariantService struct {
	logger  *slog.Logger
	local   ports.NongRepository
	indexes IndexTable

	// fileExists is replaceable in tests
	fileExists func(path string) bool
}

// NewVariantService creates a new variant service.
func NewVariantService(logger *slog.Logger, local ports.NongRepository, indexes IndexTable) *VariantService {
	return &VariantService{
		logger:     logger,
		local:      local,
		indexes:    indexes,
		fileExists: pathExists,
	}
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// ListVariants returns every variant of gdID: the default first, local
// variants taking precedence over index variants with the same unique id.
func (s *VariantService) ListVariants(gdID int) ([]domain.Variant, error) {
	local, err := s.local.GetNongs(gdID)
	if err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			return nil, err
		}
		return nil, domain.NewServiceError("VariantService", "ListVariants", "failed to get nongs", err)
	}

	variants := local.All()
	represented := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		represented[v.Metadata().UniqueID] = struct{}{}
	}

	if indexed, ok := s.indexes.IndexNongs(gdID); ok {
		for _, v := range indexed.All() {
			if _, dup := represented[v.Metadata().UniqueID]; dup {
				continue
			}
			represented[v.Metadata().UniqueID] = struct{}{}
			variants = append(variants, v)
		}
	}

	s.sortVariants(local.Default(), variants)
	return variants, nil
}

type sortKey struct {
	isDefault bool
	hasIndex  bool
	exists    bool
	rank      int
	name      string
	uniqueID  string
}

func (s *VariantService) sortVariants(def *domain.LocalSong, variants []domain.Variant) {
	keys := make(map[domain.Variant]sortKey, len(variants))
	for _, v := range variants {
		m := v.Metadata()
		keys[v] = sortKey{
			isDefault: def != nil && m.UniqueID == def.Metadata().UniqueID,
			hasIndex:  v.IndexID() != "",
			exists:    s.fileExists(v.Path()),
			rank:      v.Type().SortRank(),
			name:      m.Name,
			uniqueID:  m.UniqueID,
		}
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return keys[variants[i]].less(keys[variants[j]])
	})
}

func (a sortKey) less(b sortKey) bool {
	if a.isDefault != b.isDefault {
		return a.isDefault
	}
	if a.hasIndex != b.hasIndex {
		return !a.hasIndex
	}
	if a.exists != b.exists {
		return a.exists
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.name != b.name {
		return a.name < b.name
	}
	return a.uniqueID < b.uniqueID
}

// FindVariant returns the merged variant of gdID with the given unique id.
func (s *VariantService) FindVariant(gdID int, uniqueID string) (domain.Variant, error) {
	variants, err := s.ListVariants(gdID)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if v.Metadata().UniqueID == uniqueID {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: song %q not found for %d", domain.ErrInvalidVariantReference, uniqueID, gdID)
}

// Search filters the merged list by a fuzzy match on "artist - name",
// best matches first. An empty query returns the full list.
func (s *VariantService) Search(gdID int, query string) ([]domain.Variant, error) {
	variants, err := s.ListVariants(gdID)
	if err != nil || query == "" {
		return variants, err
	}

	targets := make([]string, len(variants))
	for i, v := range variants {
		targets[i] = domain.DisplayName(v)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Stable(ranks)

	out := make([]domain.Variant, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, variants[r.OriginalIndex])
	}
	return out, nil
}
