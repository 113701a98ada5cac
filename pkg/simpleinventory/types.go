package simpleinventory

import (
	"io"
	"strings"
	"time"
)

// Item is an inventory record. PhotoRef is an opaque asset store handle;
// nil means the item has no photo.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoRef    *string   `json:"photo_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPhoto reports whether the item references a photo asset.
func (i *Item) HasPhoto() bool {
	return i.PhotoRef != nil
}

// Clone returns a deep copy so stores never share state with callers.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	if i.PhotoRef != nil {
		ref := *i.PhotoRef
		c.PhotoRef = &ref
	}
	return &c
}

// FieldPatch is a partial update of an item's fields. Nil or blank fields
// are left untouched.
type FieldPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Normalize drops blank fields and returns ErrNoFieldsProvided when nothing
// is left to apply.
func (p FieldPatch) Normalize() (FieldPatch, error) {
	var out FieldPatch
	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			out.Name = &name
		}
	}
	if p.Description != nil && *p.Description != "" {
		desc := *p.Description
		out.Description = &desc
	}
	if out.Name == nil && out.Description == nil {
		return FieldPatch{}, ErrNoFieldsProvided
	}
	return out, nil
}

// Apply copies the patch's non-nil fields onto item. Callers are expected to
// pass a normalized patch.
func (p FieldPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
}

// RegisterRequest contains parameters for registering a new item.
type RegisterRequest struct {
	Name        string
	Description string

	// Photo is optional. PhotoExt is a hint such as ".jpg" used to name the
	// stored asset; it is sanitized by the asset store.
	Photo    io.Reader
	PhotoExt string
}

// SearchRequest looks up a reduced view of a single item.
type SearchRequest struct {
	ID           string
	IncludePhoto bool
}

// ItemSummary is the capability-reduced view returned by Search. The photo
// ref is never exposed, only whether one exists (when requested).
type ItemSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HasPhoto    *bool  `json:"has_photo,omitempty"`
}

// Asset describes a stored blob as resolved by an AssetStore.
type Asset struct {
	Ref string
	// Location is an absolute filesystem path for local stores or a URI
	// (s3://bucket/key) for object stores.
	Location    string
	Size        int64
	ContentType string
	ModTime     time.Time
}
