// Package api serves the gallery over HTTP: the HTML page, its form
// endpoints, image bytes and a JSON API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gallery/internal/filter"
	"gallery/internal/gallery"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/render"
	"gallery/internal/thumbnail"
	"gallery/internal/upload"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart upload is kept in memory;
// the rest spills to temporary files.
const multipartMemory = 32 << 20

type Options struct {
	ThumbnailEdge int
	// MaxUploadBytes bounds a whole upload request; 0 means no bound.
	MaxUploadBytes int64
	AuthUser       string
	AuthHash       string
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
	Now func() time.Time
}

type Handlers struct {
	repo    *gallery.Repository
	uploads *upload.Pipeline
	logger  *zap.Logger
	opts    Options
}

func NewHandlers(repo *gallery.Repository, uploads *upload.Pipeline, logger *zap.Logger, opts Options) *Handlers {
	if opts.ThumbnailEdge <= 0 {
		opts.ThumbnailEdge = thumbnail.DefaultMaxEdge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{repo: repo, uploads: uploads, logger: logger, opts: opts}
}

// Routes builds the router. Middleware order: recover, logging, security
// headers, then basic auth when configured.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(h.logger))
	r.Use(middleware.SecurityHeaders)
	// Cross-site form posts are refused; clients that send neither
	// Sec-Fetch-Site nor Origin are let through.
	r.Use(http.NewCrossOriginProtection().Handler)
	if h.opts.AuthUser != "" {
		r.Use(middleware.BasicAuth(h.opts.AuthUser, h.opts.AuthHash))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	r.Get("/", h.PageHandler)
	r.Post("/folders", h.CreateFolderFormHandler)
	r.Post("/upload", h.UploadFormHandler)
	r.Post("/reset", h.ResetFormHandler)
	r.Route("/images/{id}", func(r chi.Router) {
		r.With(middleware.SandboxPayload).Get("/download", h.DownloadHandler)
		r.With(middleware.SandboxPayload).Get("/thumbnail", h.ThumbnailHandler)
		r.Post("/delete", h.DeleteFormHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/folders", h.ListFoldersHandler)
		r.Post("/folders", h.CreateFolderHandler)
		r.Get("/images", h.SearchImagesHandler)
		r.Post("/images", h.AddImagesHandler)
		r.Get("/images/{id}", h.GetImageHandler)
		r.Delete("/images/{id}", h.DeleteImageHandler)
		r.Get("/document", h.ExportHandler)
		r.Delete("/document", h.ResetHandler)
	})

	if h.opts.MCP != nil {
		r.Handle("/mcp", h.opts.MCP)
	}
	return r
}

// --- HTML page and forms ---

func (h *Handlers) PageHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := filter.ParseQuery(params)
	all := h.repo.AllImages()
	matched := filter.Apply(all, q)

	page := render.Page{
		View:       render.Build(matched, len(all), q, render.PathLinks{}, h.opts.Now()),
		Folders:    h.repo.ListFolderNames(),
		Tab:        params.Get("tab"),
		Flash:      params.Get("msg"),
		FlashError: params.Get("err") != "",
	}
	if q.Folder != filter.AllFolders {
		page.UploadFolder = q.Folder
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.HTML(w, page); err != nil {
		middleware.Logger(r.Context()).Error("render page", zap.Error(err))
	}
}

func (h *Handlers) CreateFolderFormHandler(w http.ResponseWriter, r *http.Request) {
	name, err := h.repo.CreateFolder(r.Context(), r.FormValue("name"))
	if err != nil {
		redirect(w, r, url.Values{"tab": {render.TabUpload}}, folderError(err, r.FormValue("name")), true)
		return
	}
	redirect(w, r, url.Values{"tab": {render.TabUpload}, "folder": {name}},
		fmt.Sprintf("Folder %q created", name), false)
}

func (h *Handlers) UploadFormHandler(w http.ResponseWriter, r *http.Request) {
	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		redirect(w, r, url.Values{"tab": {render.TabUpload}}, "Upload could not be read: "+err.Error(), true)
		return
	}
	defer r.MultipartForm.RemoveAll()

	folder := r.FormValue("folder")
	files := upload.FromMultipart(r.MultipartForm.File["files"])
	res, err := h.uploads.Upload(r.Context(), files, folder, r.FormValue("tags"))
	back := url.Values{"tab": {render.TabUpload}}
	if folder != "" {
		back.Set("folder", folder)
	}
	if err != nil {
		redirect(w, r, back, uploadError(err), true)
		return
	}
	redirect(w, r, back, uploadMessage(res), len(res.Added) == 0)
}

func (h *Handlers) DeleteFormHandler(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r.FormValue("confirm")) {
		http.Error(w, "Deleting an image needs confirm=yes", http.StatusPreconditionRequired)
		return
	}
	id := chi.URLParam(r, "id")
	deleted, err := h.deleteImage(r, r.FormValue("folder"), id)
	back := backValues(r)
	switch {
	case err != nil:
		redirect(w, r, back, "Could not save the gallery: "+err.Error(), true)
	case !deleted:
		redirect(w, r, back, "Image not found", true)
	default:
		redirect(w, r, back, "Image deleted", false)
	}
}

func (h *Handlers) ResetFormHandler(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r.FormValue("confirm")) {
		http.Error(w, "Resetting the gallery needs confirm=yes", http.StatusPreconditionRequired)
		return
	}
	if err := h.repo.ResetAll(r.Context()); err != nil {
		redirect(w, r, nil, "Reset failed: "+err.Error(), true)
		return
	}
	redirect(w, r, nil, "Gallery reset", false)
}

// --- image bytes ---

func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	img, mediaType, payload, ok := h.imagePayload(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": downloadName(img.Image, mediaType)}))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(payload)
}

func (h *Handlers) ThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	img, mediaType, payload, ok := h.imagePayload(w, r)
	if !ok {
		return
	}
	etag := `"` + img.ID + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	thumb, err := thumbnail.Make(payload, h.opts.ThumbnailEdge)
	if err != nil {
		// Formats that cannot be decoded are served as uploaded.
		if !errors.Is(err, thumbnail.ErrUnsupported) {
			middleware.Logger(r.Context()).Warn("thumbnail failed", zap.String("id", img.ID), zap.Error(err))
		}
		thumb = thumbnail.Result{ContentType: mediaType, Data: payload}
		if !thumbnail.Raster(mediaType) {
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
				map[string]string{"filename": downloadName(img.Image, mediaType)}))
		}
	}
	w.Header().Set("Content-Type", thumb.ContentType)
	w.Write(thumb.Data)
}

func (h *Handlers) imagePayload(w http.ResponseWriter, r *http.Request) (models.MatchedImage, string, []byte, bool) {
	img, found := h.repo.FindImage(chi.URLParam(r, "id"))
	if !found {
		http.Error(w, "Image not found", http.StatusNotFound)
		return img, "", nil, false
	}
	mediaType, payload, err := models.DecodeDataURL(img.DataURL)
	if err != nil {
		middleware.Logger(r.Context()).Warn("stored image is not a data URI", zap.String("id", img.ID), zap.Error(err))
		http.Error(w, "Stored image is unreadable", http.StatusUnprocessableEntity)
		return img, "", nil, false
	}
	return img, mediaType, payload, true
}

// --- JSON API ---

type folderJSON struct {
	Name   string `json:"name"`
	Images int    `json:"images"`
}

type imageJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Folder    string   `json:"folder"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
	Bytes     int      `json:"bytes"`
	Download  string   `json:"download"`
	Thumbnail string   `json:"thumbnail"`
	DataURL   string   `json:"dataUrl,omitempty"`
}

func toJSON(img models.MatchedImage, withData bool) imageJSON {
	links := render.PathLinks{}
	out := imageJSON{
		ID:        img.ID,
		Name:      img.Name,
		Folder:    img.Folder,
		Tags:      img.Tags,
		CreatedAt: img.CreatedAt,
		Bytes:     models.DataURLSize(img.DataURL),
		Download:  links.Download(img),
		Thumbnail: links.Thumbnail(img),
	}
	if withData {
		out.DataURL = img.DataURL
	}
	return out
}

func (h *Handlers) ListFoldersHandler(w http.ResponseWriter, r *http.Request) {
	doc := h.repo.Snapshot()
	folders := []folderJSON{}
	for _, name := range h.repo.ListFolderNames() {
		folders = append(folders, folderJSON{Name: name, Images: len(doc.Folders[name])})
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *Handlers) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	name, err := h.repo.CreateFolder(r.Context(), body.Name)
	if err != nil {
		http.Error(w, folderError(err, body.Name), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, folderJSON{Name: name})
}

func (h *Handlers) SearchImagesHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := filter.ParseQuery(params)
	all := h.repo.AllImages()
	matched := filter.Apply(all, q)
	withData := params.Get("include") == "data"

	images := make([]imageJSON, 0, len(matched))
	for _, img := range matched {
		images = append(images, toJSON(img, withData))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched": len(matched),
		"total":   len(all),
		"message": render.CountMessage(len(matched), len(all)),
		"images":  images,
	})
}

func (h *Handlers) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	img, found := h.repo.FindImage(chi.URLParam(r, "id"))
	if !found {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(img, true))
}

// AddImagesHandler accepts either a multipart upload (folder, tags, files)
// or a JSON image {folder, name, dataUrl, tags}.
func (h *Handlers) AddImagesHandler(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.uploadMultipart(w, r)
		return
	}

	var body struct {
		Folder  string `json:"folder"`
		Name    string `json:"name"`
		DataURL string `json:"dataUrl"`
		Tags    any    `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	imgType, _, err := models.DecodeDataURL(body.DataURL)
	if err != nil || !strings.HasPrefix(imgType, "image/") {
		http.Error(w, "dataUrl must be a base64 image data URI", http.StatusBadRequest)
		return
	}
	tags, ok := jsonTags(body.Tags)
	if !ok {
		http.Error(w, "tags must be a string or a list of strings", http.StatusBadRequest)
		return
	}

	id, err := h.repo.AddImage(r.Context(), body.Folder, body.Name, body.DataURL, tags)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	img, _ := h.repo.FindImage(id)
	writeJSON(w, http.StatusCreated, toJSON(img, false))
}

func (h *Handlers) uploadMultipart(w http.ResponseWriter, r *http.Request) {
	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	res, err := h.uploads.Upload(r.Context(), upload.FromMultipart(r.MultipartForm.File["files"]),
		r.FormValue("folder"), r.FormValue("tags"))
	if err != nil {
		http.Error(w, uploadError(err), statusFor(err))
		return
	}
	skipped := make([]map[string]string, 0, len(res.Skipped))
	for _, s := range res.Skipped {
		skipped = append(skipped, map[string]string{"name": s.Name, "reason": s.Reason})
	}
	added := res.Added
	if added == nil {
		added = []string{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"folder":  res.Folder,
		"tags":    res.Tags,
		"added":   added,
		"skipped": skipped,
	})
}

func (h *Handlers) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r.URL.Query().Get("confirm")) {
		http.Error(w, "Deleting an image needs confirm=true", http.StatusPreconditionRequired)
		return
	}
	deleted, err := h.deleteImage(r, r.URL.Query().Get("folder"), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Could not save the gallery", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportHandler downloads the whole document in its persisted layout.
func (h *Handlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="gallery.json"`)
	writeJSON(w, http.StatusOK, h.repo.Snapshot())
}

func (h *Handlers) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r.URL.Query().Get("confirm")) {
		http.Error(w, "Resetting the gallery needs confirm=true", http.StatusPreconditionRequired)
		return
	}
	if err := h.repo.ResetAll(r.Context()); err != nil {
		http.Error(w, "Could not reset the gallery", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

// deleteImage removes id from folder, looking the folder up when the
// caller did not name one.
func (h *Handlers) deleteImage(r *http.Request, folder, id string) (bool, error) {
	if folder == "" {
		img, found := h.repo.FindImage(id)
		if !found {
			return false, nil
		}
		folder = img.Folder
	}
	return h.repo.DeleteImage(r.Context(), folder, id)
}

func confirmed(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gallery.ErrInvalidFolderName),
		errors.Is(err, upload.ErrNoFolder),
		errors.Is(err, upload.ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, gallery.ErrFolderExists):
		return http.StatusConflict
	case errors.Is(err, gallery.ErrFolderNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func folderError(err error, raw string) string {
	switch {
	case errors.Is(err, gallery.ErrInvalidFolderName):
		return "Invalid folder name"
	case errors.Is(err, gallery.ErrFolderExists):
		return fmt.Sprintf("Folder %q already exists", models.SanitizeFolderName(raw))
	}
	return "Could not save the gallery: " + err.Error()
}

func uploadError(err error) string {
	switch {
	case errors.Is(err, upload.ErrNoFolder):
		return "Select a folder first"
	case errors.Is(err, upload.ErrNoFiles):
		return "Select at least one image"
	case errors.Is(err, gallery.ErrFolderNotFound):
		return "Folder does not exist"
	}
	return "Upload failed: " + err.Error()
}

func uploadMessage(res upload.Result) string {
	msg := fmt.Sprintf("Uploaded %d image(s) to %q", len(res.Added), res.Folder)
	if n := len(res.Skipped); n > 0 {
		names := make([]string, n)
		for i, s := range res.Skipped {
			names[i] = s.Name
		}
		msg += fmt.Sprintf("; skipped %d: %s", n, strings.Join(names, ", "))
	}
	return msg
}

// backValues keeps the search the user was looking at across a form post.
func backValues(r *http.Request) url.Values {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path != "/" {
		return nil
	}
	v := filter.ParseQuery(ref.Query()).Values()
	if tab := ref.Query().Get("tab"); tab != "" {
		v.Set("tab", tab)
	}
	return v
}

func redirect(w http.ResponseWriter, r *http.Request, v url.Values, msg string, isErr bool) {
	if v == nil {
		v = url.Values{}
	}
	if msg != "" {
		v.Set("msg", msg)
	}
	if isErr {
		v.Set("err", "1")
	}
	target := "/"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func downloadName(img models.Image, mediaType string) string {
	if img.Name != "" {
		return img.Name
	}
	ext := ""
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		ext = exts[0]
	}
	return img.ID + ext
}

// jsonTags accepts "a, b" or ["a", "b"].
func jsonTags(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case string:
		return models.ParseTags(t), true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return models.NormalizeTags(out), true
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
