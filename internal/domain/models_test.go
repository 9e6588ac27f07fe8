package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariantType_SortRank(t *testing.T) {
	assert.Less(t, VariantLocal.SortRank(), VariantHosted.SortRank())
	assert.Less(t, VariantHosted.SortRank(), VariantYouTube.SortRank())
	assert.Equal(t, 1, VariantLocal.SortRank())
}

func TestVariantType_String(t *testing.T) {
	assert.Equal(t, "local", VariantLocal.String())
	assert.Equal(t, "hosted", VariantHosted.String())
	assert.Equal(t, "youtube", VariantYouTube.String())
	assert.Equal(t, "unknown", VariantType(99).String())
}

func TestMarkMaterialized_OnlyTouchesClone(t *testing.T) {
	orig := NewYTSong(SongMetadata{GDID: 1, UniqueID: "u1"}, "dQw4w9WgXcQ", "catalog")

	c := orig.Clone()
	MarkMaterialized(c, "/songs/a.mp3")

	assert.Equal(t, "/songs/a.mp3", c.Path())
	assert.Equal(t, "u1", c.IndexID())
	assert.Empty(t, orig.Path())
	assert.Equal(t, "catalog", orig.IndexID())
}

func TestSetIndexID(t *testing.T) {
	h := NewHostedSong(SongMetadata{UniqueID: "h"}, "u", "")
	SetIndexID(h, "x")
	assert.Equal(t, "x", h.IndexID())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Artist - Song", DisplayName(NewLocalSong(SongMetadata{Name: "Song", Artist: "Artist"})))
	assert.Equal(t, "Song", DisplayName(NewLocalSong(SongMetadata{Name: "Song"})))
}

func TestDownloadOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", DownloadCompleted.String())
	assert.Equal(t, "failed", DownloadFailed.String())
	assert.Equal(t, "cancelled", DownloadCancelled.String())
}

func TestCatalogError_Unwrap(t *testing.T) {
	err := NewCatalogError("load", "/tmp/x.json", ErrSchema)
	assert.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), "load")
}
