// Package upload turns selected files into gallery images.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"gallery/internal/gallery"
	"gallery/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoFolder = errors.New("no folder selected")
	ErrNoFiles  = errors.New("no files selected")
)

const (
	DefaultConcurrency = 4
	DefaultMaxBytes    = 16 << 20
)

// Adder is the part of gallery.Repository the pipeline writes to.
type Adder interface {
	HasFolder(name string) bool
	AddImages(ctx context.Context, folder string, images []gallery.NewImage) ([]string, error)
}

// Skip records a file that was left out of the batch.
type Skip struct {
	Name   string
	Reason string
}

type Result struct {
	Folder  string
	Tags    []string
	Added   []string // image ids, in selection order
	Skipped []Skip
}

type Config struct {
	Concurrency int   // parallel decoders; DefaultConcurrency when <= 0
	MaxBytes    int64 // per file; DefaultMaxBytes when 0, unlimited when < 0
}

type Pipeline struct {
	repo   Adder
	cfg    Config
	logger *zap.Logger
}

func New(repo Adder, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// Upload decodes files into data URIs and appends them to folder, all
// sharing the tags parsed from rawTags. Non-image files are skipped. The
// repository is written once, after every file has been decoded; if any
// file cannot be read nothing is added.
func (p *Pipeline) Upload(ctx context.Context, files []File, folder, rawTags string) (Result, error) {
	if folder == "" {
		return Result{}, ErrNoFolder
	}
	if len(files) == 0 {
		return Result{}, ErrNoFiles
	}
	if !p.repo.HasFolder(folder) {
		return Result{}, fmt.Errorf("%w: %s", gallery.ErrFolderNotFound, folder)
	}

	res := Result{Folder: folder, Tags: models.ParseTags(rawTags)}
	decoded := make([]*gallery.NewImage, len(files))
	skipped := make([]*Skip, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, f := range files {
		name := baseName(f.Name())
		mediaType := imageType(f.MediaType())
		if mediaType == "" {
			skipped[i] = &Skip{Name: name, Reason: "not an image"}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dataURL, err := p.encode(f, mediaType)
			if errors.Is(err, errTooLarge) {
				skipped[i] = &Skip{Name: name, Reason: "larger than upload limit"}
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			decoded[i] = &gallery.NewImage{Name: name, DataURL: dataURL, Tags: res.Tags}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var batch []gallery.NewImage
	for i := range files {
		switch {
		case decoded[i] != nil:
			batch = append(batch, *decoded[i])
		case skipped[i] != nil:
			res.Skipped = append(res.Skipped, *skipped[i])
			p.logger.Info("upload skipped file",
				zap.String("file", skipped[i].Name),
				zap.String("reason", skipped[i].Reason))
		}
	}
	if len(batch) == 0 {
		return res, nil
	}

	ids, err := p.repo.AddImages(ctx, folder, batch)
	if err != nil {
		return Result{}, err
	}
	res.Added = ids
	p.logger.Info("upload finished",
		zap.String("folder", folder),
		zap.Int("added", len(ids)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

var errTooLarge = errors.New("file too large")

func (p *Pipeline) encode(f File, mediaType string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var r io.Reader = rc
	if p.cfg.MaxBytes > 0 {
		r = io.LimitReader(rc, p.cfg.MaxBytes+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if p.cfg.MaxBytes > 0 && int64(len(payload)) > p.cfg.MaxBytes {
		return "", errTooLarge
	}
	return models.EncodeDataURL(mediaType, payload), nil
}

// baseName drops directory components some browsers send with a file name.
// The rest is kept verbatim; templates escape it on output.
func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// imageType returns the bare media type when declared is an image type,
// and "" otherwise.
func imageType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}
