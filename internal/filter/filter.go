// Package filter selects gallery images by folder, name text and tags.
package filter

import (
	"net/url"
	"slices"
	"strings"

	"gallery/internal/models"
)

// AllFolders selects images from every folder.
const AllFolders = "__ALL__"

// Query holds the search criteria. The zero value matches everything.
type Query struct {
	Folder string   // AllFolders or a folder name; "" is treated as AllFolders
	Text   string   // case-insensitive substring of the image name
	Tags   []string // all must be present on the image
}

// Apply returns the images in all that match q, in their original order.
// all is not modified.
func Apply(all []models.MatchedImage, q Query) []models.MatchedImage {
	folder := q.Folder
	if folder == "" {
		folder = AllFolders
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))
	tags := models.NormalizeTags(q.Tags)

	out := make([]models.MatchedImage, 0, len(all))
	for _, img := range all {
		if folder != AllFolders && img.Folder != folder {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(img.Name), text) {
			continue
		}
		if !hasAllTags(img.Image, tags) {
			continue
		}
		out = append(out, img)
	}
	return out
}

// hasAllTags expects want normalized; stored tags always are.
func hasAllTags(img models.Image, want []string) bool {
	for _, t := range want {
		if !img.HasTag(t) {
			return false
		}
	}
	return true
}

// WithTag returns a copy of q that also requires tag.
func (q Query) WithTag(tag string) Query {
	q.Tags = models.NormalizeTags(append(slices.Clone(q.Tags), tag))
	return q
}

// ParseQuery reads a query from the folder, q and tags URL parameters.
// tags is comma separated.
func ParseQuery(v url.Values) Query {
	q := Query{
		Folder: v.Get("folder"),
		Text:   strings.TrimSpace(v.Get("q")),
		Tags:   models.ParseTags(v.Get("tags")),
	}
	if q.Folder == "" {
		q.Folder = AllFolders
	}
	return q
}

// Values is the inverse of ParseQuery. Empty criteria are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Folder != "" && q.Folder != AllFolders {
		v.Set("folder", q.Folder)
	}
	if t := strings.TrimSpace(q.Text); t != "" {
		v.Set("q", t)
	}
	if tags := models.NormalizeTags(q.Tags); len(tags) > 0 {
		v.Set("tags", strings.Join(tags, ", "))
	}
	return v
}
