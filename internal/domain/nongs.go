package domain

import (
	"fmt"
)

// Nongs is the collection of variants known for one song.
//
// A local collection always carries a default LocalSong that can never be
// removed. Collections built from remote catalogs have no default.
// UniqueIDs are distinct across the whole collection, default included.
type Nongs struct {
	gdID        int
	active      string
	defaultSong *LocalSong
	locals      []*LocalSong
	hosted      []*HostedSong
	youtube     []*YTSong
}

// NewNongs creates a collection for gdID. defaultSong may be nil for an
// index-only collection.
func NewNongs(gdID int, defaultSong *LocalSong) *Nongs {
	n := &Nongs{gdID: gdID, defaultSong: defaultSong}
	if defaultSong != nil {
		n.active = defaultSong.meta.UniqueID
	}
	return n
}

func (n *Nongs) GDID() int             { return n.gdID }
func (n *Nongs) Default() *LocalSong   { return n.defaultSong }
func (n *Nongs) Locals() []*LocalSong  { return n.locals }
func (n *Nongs) Hosted() []*HostedSong { return n.hosted }
func (n *Nongs) YouTube() []*YTSong    { return n.youtube }
func (n *Nongs) ActiveID() string      { return n.active }

// IsDefault reports whether v is this collection's default variant.
func (n *Nongs) IsDefault(v Variant) bool {
	return n.defaultSong != nil && v.Metadata().UniqueID == n.defaultSong.meta.UniqueID
}

// Clone returns a deep copy of the collection.
func (n *Nongs) Clone() *Nongs {
	c := &Nongs{gdID: n.gdID, active: n.active}
	if n.defaultSong != nil {
		c.defaultSong = n.defaultSong.Clone().(*LocalSong)
	}
	for _, v := range n.All() {
		if n.IsDefault(v) {
			continue
		}
		c.append(v.Clone())
	}
	return c
}

// Len returns the number of variants, default included.
func (n *Nongs) Len() int {
	count := len(n.locals) + len(n.hosted) + len(n.youtube)
	if n.defaultSong != nil {
		count++
	}
	return count
}

// All returns every variant: default first, then locals, hosted, youtube.
func (n *Nongs) All() []Variant {
	all := make([]Variant, 0, n.Len())
	if n.defaultSong != nil {
		all = append(all, n.defaultSong)
	}
	for _, s := range n.locals {
		all = append(all, s)
	}
	for _, s := range n.hosted {
		all = append(all, s)
	}
	for _, s := range n.youtube {
		all = append(all, s)
	}
	return all
}

// Find returns the variant with the given unique id.
func (n *Nongs) Find(uniqueID string) (Variant, bool) {
	for _, v := range n.All() {
		if v.Metadata().UniqueID == uniqueID {
			return v, true
		}
	}
	return nil, false
}

// Add appends a non-default variant. It fails with ErrDuplicateVariant if
// the unique id is already taken, including by the default variant.
func (n *Nongs) Add(v Variant) error {
	if err := n.validate(v); err != nil {
		return err
	}
	if _, exists := n.Find(v.Metadata().UniqueID); exists {
		return fmt.Errorf("%w: %q for song %d", ErrDuplicateVariant, v.Metadata().UniqueID, n.gdID)
	}
	n.append(v)
	return nil
}

// Upsert replaces the non-default variant with the same unique id, or
// appends it. The default variant's id is reserved.
func (n *Nongs) Upsert(v Variant) error {
	if err := n.validate(v); err != nil {
		return err
	}
	if n.defaultSong != nil && v.Metadata().UniqueID == n.defaultSong.meta.UniqueID {
		return fmt.Errorf("%w: %q is reserved for the default variant", ErrDuplicateVariant, v.Metadata().UniqueID)
	}
	n.remove(v.Metadata().UniqueID)
	n.append(v)
	return nil
}

// Remove deletes a non-default variant. Removing the active variant
// makes the default active again.
func (n *Nongs) Remove(uniqueID string) error {
	if n.defaultSong != nil && uniqueID == n.defaultSong.meta.UniqueID {
		return NewValidationError("uniqueID", uniqueID, "default variant cannot be removed")
	}
	if !n.remove(uniqueID) {
		return fmt.Errorf("%w: %q", ErrNotFound, uniqueID)
	}
	if n.active == uniqueID && n.defaultSong != nil {
		n.active = n.defaultSong.meta.UniqueID
	}
	return nil
}

// SetActive marks uniqueID as the active variant.
func (n *Nongs) SetActive(uniqueID string) error {
	if _, ok := n.Find(uniqueID); !ok {
		return fmt.Errorf("%w: %q for song %d", ErrInvalidVariantReference, uniqueID, n.gdID)
	}
	n.active = uniqueID
	return nil
}

// Active returns the active variant, falling back to the default.
func (n *Nongs) Active() Variant {
	if v, ok := n.Find(n.active); ok {
		return v
	}
	if n.defaultSong != nil {
		return n.defaultSong
	}
	return nil
}

func (n *Nongs) validate(v Variant) error {
	if v == nil {
		return NewValidationError("variant", nil, "must not be nil")
	}
	if v.Metadata().UniqueID == "" {
		return NewValidationError("uniqueID", "", "must not be empty")
	}
	if v.Metadata().GDID != n.gdID {
		return NewValidationError("gdID", v.Metadata().GDID, fmt.Sprintf("variant belongs to song %d", n.gdID))
	}
	return nil
}

func (n *Nongs) append(v Variant) {
	switch s := v.(type) {
	case *LocalSong:
		n.locals = append(n.locals, s)
	case *HostedSong:
		n.hosted = append(n.hosted, s)
	case *YTSong:
		n.youtube = append(n.youtube, s)
	}
}

func (n *Nongs) remove(uniqueID string) bool {
	for i, s := range n.locals {
		if s.meta.UniqueID == uniqueID {
			n.locals = append(n.locals[:i], n.locals[i+1:]...)
			return true
		}
	}
	for i, s := range n.hosted {
		if s.meta.UniqueID == uniqueID {
			n.hosted = append(n.hosted[:i], n.hosted[i+1:]...)
			return true
		}
	}
	for i, s := range n.youtube {
		if s.meta.UniqueID == uniqueID {
			n.youtube = append(n.youtube[:i], n.youtube[i+1:]...)
			return true
		}
	}
	return false
}
