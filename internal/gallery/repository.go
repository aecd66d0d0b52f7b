// Package gallery owns the in-memory gallery document: folders, the images
// inside them and every mutation, each of which is persisted before the call
// returns.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"gallery/internal/idgen"
	"gallery/internal/models"
	"gallery/internal/store"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	ErrInvalidFolderName = errors.New("folder name is empty after sanitizing")
	ErrFolderExists      = errors.New("folder already exists")
	ErrFolderNotFound    = errors.New("folder not found")
)

// Persister is the subset of store.Documents the repository needs.
type Persister interface {
	Load(ctx context.Context) (models.Document, store.LoadStatus)
	Save(ctx context.Context, doc models.Document) error
	Clear(ctx context.Context) error
}

// NewImage is an image about to be appended to a folder.
type NewImage struct {
	Name    string
	DataURL string
	Tags    []string
}

type Repository struct {
	mu     sync.Mutex
	doc    models.Document
	store  Persister
	newID  idgen.Generator
	now    func() time.Time
	lang   language.Tag
	logger *zap.Logger
}

type Option func(*Repository)

func WithIDs(gen idgen.Generator) Option { return func(r *Repository) { r.newID = gen } }

func WithClock(now func() time.Time) Option { return func(r *Repository) { r.now = now } }

// WithLanguage sets the collation used to order folder names.
func WithLanguage(tag language.Tag) Option { return func(r *Repository) { r.lang = tag } }

func WithLogger(l *zap.Logger) Option { return func(r *Repository) { r.logger = l } }

// Open loads the document from p and returns a repository over it.
func Open(ctx context.Context, p Persister, opts ...Option) *Repository {
	r := &Repository{
		store:  p,
		newID:  idgen.Default,
		now:    time.Now,
		lang:   language.Und,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	r.doc = r.load(ctx)
	return r
}

func (r *Repository) load(ctx context.Context) models.Document {
	doc, status := r.store.Load(ctx)
	r.logger.Debug("gallery loaded",
		zap.Stringer("status", status),
		zap.Int("folders", len(doc.Folders)),
		zap.Int("images", doc.Count()))
	return doc
}

// Reload replaces the in-memory document with the stored one. The lock is
// held across the read so a concurrent mutation lands after it, not under it.
func (r *Repository) Reload(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = r.load(ctx)
}

// ListFolderNames returns folder names in locale-aware order.
func (r *Repository) ListFolderNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.folderNames()
}

func (r *Repository) folderNames() []string {
	names := slices.Collect(maps.Keys(r.doc.Folders))
	// A fresh Collator per call: collate.Collator is not safe for concurrent use.
	collate.New(r.lang).SortStrings(names)
	return names
}

// HasFolder reports whether name is an existing folder.
func (r *Repository) HasFolder(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.doc.Folders[name]
	return ok
}

// CreateFolder sanitizes rawName and adds an empty folder with the result.
func (r *Repository) CreateFolder(ctx context.Context, rawName string) (string, error) {
	name := models.SanitizeFolderName(rawName)
	if name == "" {
		return "", ErrInvalidFolderName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doc.Folders[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrFolderExists, name)
	}

	r.doc.Folders[name] = []models.Image{}
	if err := r.save(ctx); err != nil {
		return "", err
	}
	r.logger.Info("folder created", zap.String("folder", name))
	return name, nil
}

// AddImage appends one image to folder and returns its id.
func (r *Repository) AddImage(ctx context.Context, folder, name, dataURL string, tags []string) (string, error) {
	ids, err := r.AddImages(ctx, folder, []NewImage{{Name: name, DataURL: dataURL, Tags: tags}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddImages appends images to folder in order and persists once.
func (r *Repository) AddImages(ctx context.Context, folder string, images []NewImage) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.doc.Folders[folder]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}

	ids := make([]string, 0, len(images))
	for _, ni := range images {
		img := models.Image{
			ID:        r.newID(),
			Name:      ni.Name,
			DataURL:   ni.DataURL,
			Tags:      models.NormalizeTags(ni.Tags),
			CreatedAt: r.now().UnixMilli(),
		}
		existing = append(existing, img)
		ids = append(ids, img.ID)
	}
	r.doc.Folders[folder] = existing

	if err := r.save(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("images added", zap.String("folder", folder), zap.Int("count", len(ids)))
	return ids, nil
}

// DeleteImage removes the image with id from folder. It reports whether an
// image was removed; an unknown folder or id is a no-op.
func (r *Repository) DeleteImage(ctx context.Context, folder, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	images := r.doc.Folders[folder]
	i := slices.IndexFunc(images, func(img models.Image) bool { return img.ID == id })
	if i < 0 {
		return false, nil
	}
	r.doc.Folders[folder] = slices.Delete(slices.Clone(images), i, i+1)

	if err := r.save(ctx); err != nil {
		return false, err
	}
	r.logger.Info("image deleted", zap.String("folder", folder), zap.String("id", id))
	return true, nil
}

// ResetAll clears the store and starts over from the default document.
func (r *Repository) ResetAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.doc, _ = r.store.Load(ctx)
	r.logger.Info("gallery reset")
	return nil
}

// AllImages flattens every folder, newest first. Images with equal
// timestamps keep folder order then append order.
func (r *Repository) AllImages() []models.MatchedImage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.MatchedImage
	for _, folder := range r.folderNames() {
		for _, img := range r.doc.Folders[folder] {
			img.Tags = slices.Clone(img.Tags)
			out = append(out, models.MatchedImage{Image: img, Folder: folder})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// FindImage looks an image up by id across all folders.
func (r *Repository) FindImage(id string) (models.MatchedImage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for folder, images := range r.doc.Folders {
		for _, img := range images {
			if img.ID == id {
				img.Tags = slices.Clone(img.Tags)
				return models.MatchedImage{Image: img, Folder: folder}, true
			}
		}
	}
	return models.MatchedImage{}, false
}

// Count returns the total number of images.
func (r *Repository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Count()
}

// Snapshot returns a deep copy of the current document.
func (r *Repository) Snapshot() models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Clone()
}

// save must be called with mu held.
func (r *Repository) save(ctx context.Context) error {
	if err := r.store.Save(ctx, r.doc); err != nil {
		r.logger.Error("persisting gallery failed", zap.Error(err))
		return err
	}
	return nil
}
