package service

import (
	"bytes"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

// catalogHeader is the required part of a catalog document.
type catalogHeader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type catalogDocument struct {
	catalogHeader
	Nongs struct {
		YouTube jsoniter.RawMessage `json:"youtube"`
		Hosted  jsoniter.RawMessage `json:"hosted"`
	} `json:"nongs"`
}

// catalogEntry is one variant description. Song ids are accepted under
// either "songs" or "songIDs"; the unique id comes from the object key
// when entries are keyed, or from "uniqueID" when they are listed.
type catalogEntry struct {
	UniqueID    string  `json:"uniqueID"`
	Name        *string `json:"name"`
	Artist      *string `json:"artist"`
	URL         string  `json:"url"`
	YoutubeID   string  `json:"ytID"`
	StartOffset int     `json:"startOffset"`
	Songs       []int   `json:"songs"`
	SongIDs     []int   `json:"songIDs"`
}

type parsedEntry struct {
	domain.IndexSongMetadata
	kind domain.VariantType
}

func (e parsedEntry) variant(gdID int) domain.Variant {
	meta := domain.SongMetadata{
		GDID:        gdID,
		UniqueID:    e.UniqueID,
		Name:        e.Name,
		Artist:      e.Artist,
		StartOffset: e.StartOffset,
	}
	if e.kind == domain.VariantYouTube {
		return domain.NewYTSong(meta, e.YoutubeID, e.ParentID)
	}
	return domain.NewHostedSong(meta, e.URL, e.ParentID)
}

type parsedCatalog struct {
	index   domain.IndexMetadata
	entries []parsedEntry
	skipped []error
}

func decodeCatalogHeader(data []byte) (*catalogHeader, error) {
	var h catalogHeader
	if err := catalogJSON.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchema, err)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

func (h catalogHeader) validate() error {
	switch {
	case h.ID == "":
		return fmt.Errorf("%w: index is missing \"id\"", domain.ErrSchema)
	case h.Name == "":
		return fmt.Errorf("%w: index is missing \"name\"", domain.ErrSchema)
	case h.URL == "":
		return fmt.Errorf("%w: index is missing \"url\"", domain.ErrSchema)
	}
	return nil
}

// parseCatalog decodes a cached catalog. Malformed JSON is a parse error,
// a missing header field a schema error. Broken entries are collected in
// skipped and do not fail the catalog.
func parseCatalog(data []byte) (*parsedCatalog, error) {
	if !catalogJSON.Valid(data) {
		return nil, fmt.Errorf("%w: malformed index document", domain.ErrParse)
	}
	if first := firstNonSpace(data); first != '{' {
		return nil, fmt.Errorf("%w: index supposed to be an object", domain.ErrParse)
	}

	var doc catalogDocument
	if err := catalogJSON.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchema, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}

	out := &parsedCatalog{
		index: domain.IndexMetadata{ID: doc.ID, Name: doc.Name, URL: doc.URL},
	}
	out.collect(doc.Nongs.YouTube, domain.VariantYouTube)
	out.collect(doc.Nongs.Hosted, domain.VariantHosted)
	return out, nil
}

func (c *parsedCatalog) collect(raw jsoniter.RawMessage, kind domain.VariantType) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}

	type keyed struct {
		key string
		raw jsoniter.RawMessage
	}
	var items []keyed

	switch firstNonSpace(raw) {
	case '{':
		var m map[string]jsoniter.RawMessage
		if err := catalogJSON.Unmarshal(raw, &m); err != nil {
			c.skipped = append(c.skipped, fmt.Errorf("%w: %s section: %v", domain.ErrParse, kind, err))
			return
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, keyed{key: k, raw: m[k]})
		}
	case '[':
		var list []jsoniter.RawMessage
		if err := catalogJSON.Unmarshal(raw, &list); err != nil {
			c.skipped = append(c.skipped, fmt.Errorf("%w: %s section: %v", domain.ErrParse, kind, err))
			return
		}
		for _, r := range list {
			items = append(items, keyed{raw: r})
		}
	default:
		c.skipped = append(c.skipped, fmt.Errorf("%w: %s section must be an object or array", domain.ErrSchema, kind))
		return
	}

	for _, item := range items {
		entry, err := decodeEntry(item.key, item.raw, kind)
		if err != nil {
			c.skipped = append(c.skipped, err)
			continue
		}
		entry.ParentID = c.index.ID
		c.entries = append(c.entries, entry)
	}
}

func decodeEntry(key string, raw jsoniter.RawMessage, kind domain.VariantType) (parsedEntry, error) {
	var e catalogEntry
	if err := catalogJSON.Unmarshal(raw, &e); err != nil {
		return parsedEntry{}, fmt.Errorf("%w: %s entry %q: %v", domain.ErrParse, kind, key, err)
	}

	uniqueID := key
	if uniqueID == "" {
		uniqueID = e.UniqueID
	}
	songIDs := e.Songs
	if len(songIDs) == 0 {
		songIDs = e.SongIDs
	}

	switch {
	case uniqueID == "":
		return parsedEntry{}, fmt.Errorf("%w: %s entry has no unique id", domain.ErrSchema, kind)
	case e.Name == nil:
		return parsedEntry{}, fmt.Errorf("%w: %s entry %q is missing \"name\"", domain.ErrSchema, kind, uniqueID)
	case e.Artist == nil:
		return parsedEntry{}, fmt.Errorf("%w: %s entry %q is missing \"artist\"", domain.ErrSchema, kind, uniqueID)
	case kind == domain.VariantYouTube && e.YoutubeID == "":
		return parsedEntry{}, fmt.Errorf("%w: %s entry %q is missing \"ytID\"", domain.ErrSchema, kind, uniqueID)
	case kind == domain.VariantHosted && e.URL == "":
		return parsedEntry{}, fmt.Errorf("%w: %s entry %q is missing \"url\"", domain.ErrSchema, kind, uniqueID)
	}

	return parsedEntry{
		IndexSongMetadata: domain.IndexSongMetadata{
			UniqueID:    uniqueID,
			Name:        *e.Name,
			Artist:      *e.Artist,
			URL:         e.URL,
			YoutubeID:   e.YoutubeID,
			StartOffset: e.StartOffset,
			SongIDs:     songIDs,
		},
		kind: kind,
	}, nil
}

func firstNonSpace(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
