package models

import (
	"slices"
	"time"
)

// DefaultFolder is the folder every fresh document starts with.
const DefaultFolder = "Default"

// Image is one uploaded picture. Field names follow the persisted layout.
type Image struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	DataURL   string   `json:"dataUrl"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
}

// Created returns CreatedAt as a time.Time.
func (img Image) Created() time.Time {
	return time.UnixMilli(img.CreatedAt)
}

// HasTag reports whether the image carries tag. Tags are stored lowercase.
func (img Image) HasTag(tag string) bool {
	return slices.Contains(img.Tags, tag)
}

// Document is the whole persisted gallery: folder name -> images in append order.
type Document struct {
	Folders map[string][]Image `json:"folders"`
}

// NewDocument returns the document a first run starts with.
func NewDocument() Document {
	return Document{Folders: map[string][]Image{DefaultFolder: {}}}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{Folders: make(map[string][]Image, len(d.Folders))}
	for name, images := range d.Folders {
		cp := make([]Image, len(images))
		for i, img := range images {
			img.Tags = slices.Clone(img.Tags)
			cp[i] = img
		}
		out.Folders[name] = cp
	}
	return out
}

// Count returns the number of images across all folders.
func (d Document) Count() int {
	n := 0
	for _, images := range d.Folders {
		n += len(images)
	}
	return n
}

// MatchedImage is an image annotated with the folder that owns it.
type MatchedImage struct {
	Image
	Folder string `json:"folder"`
}
