// Package tagprobe identifies audio files and reads their tags.
package tagprobe

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// Probe implements ports.AudioProbe with dhowden/tag.
type Probe struct{}

// New creates a probe.
func New() *Probe {
	return &Probe{}
}

// Probe reads tags from the file at path. Files without tags are still
// identified by their header; files that are not audio fail with
// domain.ErrParse.
func (p *Probe) Probe(path string) (*ports.AudioInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err == nil && metadata != nil {
		return &ports.AudioInfo{
			Format:   string(metadata.Format()),
			FileType: string(metadata.FileType()),
			Title:    strings.TrimSpace(metadata.Title()),
			Artist:   strings.TrimSpace(metadata.Artist()),
			Album:    strings.TrimSpace(metadata.Album()),
		}, nil
	}

	// No tags: fall back to sniffing the container
	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	format, fileType, err := tag.Identify(file)
	if err != nil || fileType == tag.UnknownFileType {
		return nil, fmt.Errorf("%w: %s is not a recognized audio file", domain.ErrParse, path)
	}
	return &ports.AudioInfo{Format: string(format), FileType: string(fileType)}, nil
}

var _ ports.AudioProbe = (*Probe)(nil)
