package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gallery/internal/idgen"
	"gallery/internal/models"

	"go.uber.org/zap"
)

// DefaultKey is the key the gallery document lives under.
const DefaultKey = "gallery_v2"

// LoadStatus tells how Load obtained its document.
type LoadStatus int

const (
	StatusLoaded         LoadStatus = iota // stored document parsed
	StatusAbsent                           // nothing stored yet
	StatusMalformed                        // stored bytes are not a JSON document
	StatusMissingFolders                   // JSON without a "folders" object
	StatusUnreadable                       // backend read failed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusAbsent:
		return "absent"
	case StatusMalformed:
		return "malformed"
	case StatusMissingFolders:
		return "missing-folders"
	case StatusUnreadable:
		return "unreadable"
	}
	return fmt.Sprintf("LoadStatus(%d)", int(s))
}

// Fallback reports whether Load returned the default document.
func (s LoadStatus) Fallback() bool { return s != StatusLoaded }

// Documents loads and saves the gallery document through a KV backend.
type Documents struct {
	kv     KV
	key    string
	newID  idgen.Generator
	logger *zap.Logger
}

type Option func(*Documents)

// WithKey overrides DefaultKey.
func WithKey(key string) Option { return func(d *Documents) { d.key = key } }

// WithIDs sets the generator used to repair missing or duplicate image ids.
func WithIDs(gen idgen.Generator) Option { return func(d *Documents) { d.newID = gen } }

func WithLogger(l *zap.Logger) Option { return func(d *Documents) { d.logger = l } }

func NewDocuments(kv KV, opts ...Option) *Documents {
	d := &Documents{
		kv:     kv,
		key:    DefaultKey,
		newID:  idgen.Default,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Load reads the stored document. It never fails: any problem yields the
// default document and a status describing what went wrong.
func (d *Documents) Load(ctx context.Context) (models.Document, LoadStatus) {
	raw, err := d.kv.Get(ctx, d.key)
	if errors.Is(err, ErrNotFound) {
		return models.NewDocument(), StatusAbsent
	}
	if err != nil {
		d.logger.Warn("document read failed, using default", zap.String("key", d.key), zap.Error(err))
		return models.NewDocument(), StatusUnreadable
	}

	doc, status := d.parse(raw)
	if status.Fallback() {
		d.logger.Warn("stored document rejected, using default",
			zap.String("key", d.key), zap.Stringer("status", status))
	}
	return doc, status
}

func (d *Documents) parse(raw []byte) (models.Document, LoadStatus) {
	var stored struct {
		Folders map[string][]models.Image `json:"folders"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return models.NewDocument(), StatusMalformed
	}
	if stored.Folders == nil {
		return models.NewDocument(), StatusMissingFolders
	}
	return d.validate(stored.Folders), StatusLoaded
}

// validate applies the defaulting rules to a freshly parsed document.
func (d *Documents) validate(folders map[string][]models.Image) models.Document {
	doc := models.Document{Folders: make(map[string][]models.Image, len(folders))}
	seen := make(map[string]bool)

	for _, name := range slices.Sorted(maps.Keys(folders)) {
		images := folders[name]
		if name == "" || models.SanitizeFolderName(name) != name {
			d.logger.Warn("dropping folder with invalid name",
				zap.String("folder", name), zap.Int("images", len(images)))
			continue
		}
		out := make([]models.Image, 0, len(images))
		for _, img := range images {
			if img.ID == "" || seen[img.ID] {
				img.ID = d.newID()
			}
			seen[img.ID] = true
			img.Tags = models.NormalizeTags(img.Tags)
			out = append(out, img)
		}
		doc.Folders[name] = out
	}
	return doc
}

// Save overwrites the stored document.
func (d *Documents) Save(ctx context.Context, doc models.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := d.kv.Set(ctx, d.key, raw); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// Clear removes the stored document; the next Load returns the default.
func (d *Documents) Clear(ctx context.Context) error {
	if err := d.kv.Delete(ctx, d.key); err != nil {
		return fmt.Errorf("clear document: %w", err)
	}
	return nil
}

// Watch forwards to the backend when it supports change notification and
// reports whether it does.
func (d *Documents) Watch(ctx context.Context, fn func()) (bool, error) {
	w, ok := d.kv.(Watcher)
	if !ok {
		return false, nil
	}
	return true, w.Watch(ctx, d.key, fn)
}
