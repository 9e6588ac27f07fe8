// Package domain contains the core entities of the jukebox: song metadata,
// variant kinds, per-song variant collections and remote index descriptors.
// It has no external dependencies.
package domain

import (
	"fmt"
)

// VariantType identifies the kind of audio source a variant points at.
type VariantType int

const (
	// VariantLocal is an already materialized file on disk
	VariantLocal VariantType = iota

	// VariantHosted is a direct-download URL
	VariantHosted

	// VariantYouTube is a stream resolved through a third-party resolver
	VariantYouTube
)

// String returns a human-readable representation of the variant type.
func (t VariantType) String() string {
	switch t {
	case VariantLocal:
		return "local"
	case VariantHosted:
		return "hosted"
	case VariantYouTube:
		return "youtube"
	default:
		return "unknown"
	}
}

// SortRank orders kinds as Local < Hosted < YouTube.
func (t VariantType) SortRank() int {
	return int(t) + 1
}

// SongMetadata describes one variant of a song.
type SongMetadata struct {
	// GDID is the numeric song identifier shared by all variants of a song
	GDID int

	// UniqueID identifies the variant within the song's variant set
	UniqueID string

	Name   string
	Artist string

	// Path is the local file path once the variant has been materialized
	Path string

	// StartOffset is the playback offset in milliseconds
	StartOffset int
}

// Variant is one concrete audio source alternative for a song.
// The set of implementations is closed: LocalSong, HostedSong and YTSong.
type Variant interface {
	Metadata() *SongMetadata
	Type() VariantType

	// Path returns the local file path, or "" if nothing was materialized.
	Path() string

	// IndexID returns the catalog id the variant came from, or "" for
	// purely local variants.
	IndexID() string

	// Clone returns a deep copy that can be mutated independently.
	Clone() Variant

	isVariant()
}

type variantBase struct {
	meta    SongMetadata
	indexID string
}

func (v *variantBase) Metadata() *SongMetadata { return &v.meta }
func (v *variantBase) Path() string            { return v.meta.Path }
func (v *variantBase) IndexID() string         { return v.indexID }
func (v *variantBase) isVariant()              {}

// LocalSong is a variant backed by a file that already exists locally.
type LocalSong struct {
	variantBase
}

// NewLocalSong creates a local variant.
func NewLocalSong(meta SongMetadata) *LocalSong {
	return &LocalSong{variantBase{meta: meta}}
}

func (s *LocalSong) Type() VariantType { return VariantLocal }

func (s *LocalSong) Clone() Variant {
	c := *s
	return &c
}

// HostedSong is a variant downloadable from a direct URL.
type HostedSong struct {
	variantBase
	URL string
}

// NewHostedSong creates a hosted variant. indexID is "" for variants the
// user added by hand.
func NewHostedSong(meta SongMetadata, url, indexID string) *HostedSong {
	return &HostedSong{variantBase: variantBase{meta: meta, indexID: indexID}, URL: url}
}

func (s *HostedSong) Type() VariantType { return VariantHosted }

func (s *HostedSong) Clone() Variant {
	c := *s
	return &c
}

// YTSong is a variant resolved from a YouTube video id.
type YTSong struct {
	variantBase
	YoutubeID string
}

// NewYTSong creates a YouTube variant.
func NewYTSong(meta SongMetadata, youtubeID, indexID string) *YTSong {
	return &YTSong{variantBase: variantBase{meta: meta, indexID: indexID}, YoutubeID: youtubeID}
}

func (s *YTSong) Type() VariantType { return VariantYouTube }

func (s *YTSong) Clone() Variant {
	c := *s
	return &c
}

// YouTubeIDLength is the exact length of a valid YouTube video id.
const YouTubeIDLength = 11

// MarkMaterialized records the downloaded file on v and tags it with its own
// unique id as provenance. Only call it on a clone the caller owns.
func MarkMaterialized(v Variant, path string) {
	v.Metadata().Path = path
	switch s := v.(type) {
	case *HostedSong:
		s.indexID = s.meta.UniqueID
	case *YTSong:
		s.indexID = s.meta.UniqueID
	case *LocalSong:
		s.indexID = s.meta.UniqueID
	}
}

// SetIndexID overrides the catalog id of a variant.
func SetIndexID(v Variant, indexID string) {
	switch s := v.(type) {
	case *HostedSong:
		s.indexID = indexID
	case *YTSong:
		s.indexID = indexID
	case *LocalSong:
		s.indexID = indexID
	}
}

// DisplayName returns "artist - name" for logs and search.
func DisplayName(v Variant) string {
	m := v.Metadata()
	if m.Artist == "" {
		return m.Name
	}
	return fmt.Sprintf("%s - %s", m.Artist, m.Name)
}

// IndexSource is a remote catalog descriptor supplied by settings.
type IndexSource struct {
	URL     string
	Enabled bool
}

// IndexMetadata describes a parsed remote catalog.
type IndexMetadata struct {
	ID   string
	Name string
	URL  string
}

// IndexSongMetadata is one catalog entry before it is expanded into
// per-song variants. ParentID refers back to the owning IndexMetadata.
type IndexSongMetadata struct {
	UniqueID    string
	Name        string
	Artist      string
	URL         string
	YoutubeID   string
	StartOffset int
	SongIDs     []int
	ParentID    string
}

// DownloadOutcome is the terminal state of a download task.
type DownloadOutcome int

const (
	DownloadCompleted DownloadOutcome = iota
	DownloadFailed
	DownloadCancelled
)

// String returns a human-readable representation of the outcome.
func (o DownloadOutcome) String() string {
	switch o {
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "failed"
	case DownloadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
