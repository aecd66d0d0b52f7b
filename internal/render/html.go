package render

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"gallery/internal/filter"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("gallery.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/gallery.html"))

// Tabs of the gallery page.
const (
	TabSearch = "search"
	TabUpload = "upload"
)

// Page is everything the gallery page shows besides the cards.
type Page struct {
	View         View
	Folders      []string
	Tab          string
	UploadFolder string
	Flash        string
	FlashError   bool
}

// AllFolders exposes the folder sentinel to the template.
func (Page) AllFolders() string { return filter.AllFolders }

// HTML writes the gallery page.
func HTML(w io.Writer, p Page) error {
	if p.Tab != TabUpload {
		p.Tab = TabSearch
	}
	return pageTmpl.Execute(w, p)
}
