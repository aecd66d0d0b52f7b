// Package render projects filtered gallery images into display cards.
// Build is pure; HTML and Text turn a View into output.
package render

import (
	"fmt"
	"net/url"
	"time"

	"gallery/internal/filter"
	"gallery/internal/models"

	"github.com/dustin/go-humanize"
)

const (
	NoName       = "(no name)"
	fallbackFile = "image"
)

// Links produces the references a card points at.
type Links interface {
	Thumbnail(img models.MatchedImage) string
	Download(img models.MatchedImage) string
	Delete(img models.MatchedImage) string
	Search(q filter.Query) string
}

// DataLinks points thumbnails and downloads straight at the data URI.
type DataLinks struct{}

func (DataLinks) Thumbnail(img models.MatchedImage) string { return img.DataURL }
func (DataLinks) Download(img models.MatchedImage) string  { return img.DataURL }
func (DataLinks) Delete(models.MatchedImage) string        { return "" }

func (DataLinks) Search(q filter.Query) string {
	return "?" + q.Values().Encode()
}

// Chip is a clickable tag. Href runs the current query plus this tag.
type Chip struct {
	Label  string
	Href   string
	Active bool // already part of the query
}

type Card struct {
	ID           string
	Folder       string
	Name         string // display name, never empty
	Title        string // original file name, may be empty
	Thumbnail    string
	Download     string
	DownloadName string
	Delete       string
	Tags         []Chip
	Size         string
	Age          string
	Created      time.Time
}

type View struct {
	Query   filter.Query
	Cards   []Card
	Matched int
	Total   int
	Empty   bool
	Message string
}

// Build turns the filtered images into cards. total is the number of images
// in the whole gallery and now anchors the relative ages.
func Build(matched []models.MatchedImage, total int, q filter.Query, links Links, now time.Time) View {
	if links == nil {
		links = DataLinks{}
	}
	v := View{
		Query:   q,
		Matched: len(matched),
		Total:   total,
		Empty:   len(matched) == 0,
		Message: CountMessage(len(matched), total),
	}
	if v.Empty {
		return v
	}

	active := make(map[string]bool, len(q.Tags))
	for _, t := range models.NormalizeTags(q.Tags) {
		active[t] = true
	}

	v.Cards = make([]Card, 0, len(matched))
	for _, img := range matched {
		c := Card{
			ID:           img.ID,
			Folder:       img.Folder,
			Name:         img.Name,
			Title:        img.Name,
			Thumbnail:    links.Thumbnail(img),
			Download:     links.Download(img),
			DownloadName: img.Name,
			Delete:       links.Delete(img),
			Created:      img.Created(),
			Age:          humanize.RelTime(img.Created(), now, "ago", "from now"),
		}
		if c.Name == "" {
			c.Name = NoName
			c.DownloadName = fallbackFile
		}
		if n := models.DataURLSize(img.DataURL); n > 0 {
			c.Size = humanize.IBytes(uint64(n))
		}
		for _, t := range img.Tags {
			c.Tags = append(c.Tags, Chip{
				Label:  t,
				Href:   links.Search(q.WithTag(t)),
				Active: active[t],
			})
		}
		v.Cards = append(v.Cards, c)
	}
	return v
}

// CountMessage contrasts the matches with the gallery size.
func CountMessage(matched, total int) string {
	switch {
	case total == 0:
		return "No images yet"
	case matched == 0:
		return fmt.Sprintf("No images match the current filters (0 of %d)", total)
	default:
		return fmt.Sprintf("Showing %d of %d images", matched, total)
	}
}

// SearchURL builds base?query for a query.
func SearchURL(base string, q filter.Query) string {
	if enc := q.Values().Encode(); enc != "" {
		return base + "?" + enc
	}
	return base
}

// PathLinks points at the HTTP server routes mounted under Base.
type PathLinks struct {
	Base string // "" when mounted at the root
}

func (l PathLinks) image(img models.MatchedImage, action string) string {
	return l.Base + "/images/" + url.PathEscape(img.ID) + "/" + action
}

func (l PathLinks) Thumbnail(img models.MatchedImage) string { return l.image(img, "thumbnail") }
func (l PathLinks) Download(img models.MatchedImage) string  { return l.image(img, "download") }
func (l PathLinks) Delete(img models.MatchedImage) string    { return l.image(img, "delete") }
func (l PathLinks) Search(q filter.Query) string             { return SearchURL(l.Base+"/", q) }
