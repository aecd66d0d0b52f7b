package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"time"

	"gallery/internal/gallery"
	"gallery/internal/models"

	"github.com/spf13/cobra"
)

var sampleSubjects = []struct {
	name string
	tags []string
}{
	{"sunset", []string{"sky", "evening"}},
	{"beach", []string{"sea", "summer"}},
	{"mountain", []string{"hike", "outdoors"}},
	{"forest", []string{"hike", "green"}},
	{"city-lights", []string{"night", "city"}},
	{"birthday", []string{"family", "party"}},
	{"cat-nap", []string{"pets", "cat"}},
	{"dog-park", []string{"pets", "dog", "outdoors"}},
	{"breakfast", []string{"food"}},
	{"snow-day", []string{"winter", "outdoors"}},
	{"garden", []string{"green", "summer"}},
	{"concert", []string{"night", "music"}},
}

type seedOptions struct {
	folders []string
	perDir  int
	days    int
	size    int
	seed    uint64
}

func newSeedCmd(a *app) *cobra.Command {
	var o seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the gallery with generated sample images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := a.seed(cmd, o)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d sample images across %d folders over the past %d days\n",
				added, len(o.folders), o.days)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&o.folders, "folders", []string{models.DefaultFolder, "Trips", "Family", "Pets"}, "folders to fill, created when missing")
	cmd.Flags().IntVar(&o.perDir, "count", 6, "images per folder")
	cmd.Flags().IntVar(&o.days, "days", 365, "spread creation times over this many past days")
	cmd.Flags().IntVar(&o.size, "size", 96, "edge of the generated square images in pixels")
	cmd.Flags().Uint64Var(&o.seed, "seed", 0, "random seed; 0 picks one from the clock")
	return cmd
}

func (a *app) seed(cmd *cobra.Command, o seedOptions) (int, error) {
	if o.perDir < 1 || o.days < 1 || o.size < 1 {
		return 0, errors.New("--count, --days and --size must be positive")
	}
	if o.seed == 0 {
		o.seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(o.seed, o.seed>>32))

	// Random time during a day within the window, 8 AM to 10 PM.
	now := time.Now()
	clock := func() time.Time {
		day := now.AddDate(0, 0, -rng.IntN(o.days))
		return time.Date(day.Year(), day.Month(), day.Day(), 8+rng.IntN(14), rng.IntN(60), rng.IntN(60), 0, day.Location())
	}
	// A second repository over the same document, with the spread clock.
	repo := gallery.Open(cmd.Context(), a.docs, gallery.WithClock(clock), gallery.WithLogger(a.logger))

	added := 0
	for _, raw := range o.folders {
		folder := models.SanitizeFolderName(raw)
		if !repo.HasFolder(folder) {
			var err error
			if folder, err = repo.CreateFolder(cmd.Context(), raw); err != nil {
				return added, fmt.Errorf("folder %q: %w", raw, err)
			}
		}

		batch := make([]gallery.NewImage, 0, o.perDir)
		for i := 0; i < o.perDir; i++ {
			subject := sampleSubjects[rng.IntN(len(sampleSubjects))]
			payload, err := samplePNG(rng, o.size)
			if err != nil {
				return added, err
			}
			batch = append(batch, gallery.NewImage{
				Name:    fmt.Sprintf("%s-%02d.png", subject.name, i+1),
				DataURL: models.EncodeDataURL("image/png", payload),
				Tags:    subject.tags,
			})
		}
		ids, err := repo.AddImages(cmd.Context(), folder, batch)
		if err != nil {
			return added, err
		}
		added += len(ids)
	}
	a.repo.Reload(cmd.Context())
	return added, nil
}

// samplePNG draws a diagonal two-colour gradient.
func samplePNG(rng *rand.Rand, size int) ([]byte, error) {
	from := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
	to := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	span := max(2*(size-1), 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			t := float64(x+y) / float64(span)
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}
