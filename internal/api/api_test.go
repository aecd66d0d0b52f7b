package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"gallery/internal/gallery"
	"gallery/internal/idgen"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/store"
	"gallery/internal/store/memstore"
	"gallery/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	repo    *gallery.Repository
	handler http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ms := now.UnixMilli()
	repo := gallery.Open(context.Background(), store.NewDocuments(memstore.New()),
		gallery.WithIDs(idgen.Sequence("img")),
		gallery.WithClock(func() time.Time { ms += 1000; return time.UnixMilli(ms) }))
	opts.Now = func() time.Time { return now.Add(time.Hour) }
	h := NewHandlers(repo, upload.New(repo, upload.Config{}, nil), nil, opts)
	return &fixture{repo: repo, handler: h.Routes()}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.repo.CreateFolder(ctx, "Trips")
	require.NoError(t, err)
	data := models.EncodeDataURL("image/png", pngBytes(t, 8, 4))
	for _, a := range []struct {
		folder, name, tags string
	}{
		{"Trips", "beach.png", "beach, sunset"},
		{"Trips", "mountain.png", "hike"},
		{"Default", "Beach-party.png", "beach"},
	} {
		_, err := f.repo.AddImage(ctx, a.folder, a.name, data, models.ParseTags(a.tags))
		require.NoError(t, err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func form(path string, v url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type part struct {
	name, contentType string
	data              []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		hdr.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		w.Write(f.data)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func redirectParams(t *testing.T, w *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query()
}

func TestPage(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="emptyState"`)
	assert.Contains(t, w.Body.String(), "No images yet")

	f.seed(t)
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/?q=BEACH", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Showing 2 of 3 images")
	assert.Contains(t, body, "beach.png")
	assert.Contains(t, body, "Beach-party.png")
	assert.NotContains(t, body, "mountain.png")
	assert.NotContains(t, body, "base64", "cards link to thumbnails instead of inlining data")
	assert.Contains(t, body, "/images/img-1/thumbnail")

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/?q=zzz", nil))
	assert.Contains(t, w.Body.String(), "No images match the current filters (0 of 3)")
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestCreateFolderForm(t *testing.T) {
	f := newFixture(t, Options{})

	p := redirectParams(t, f.do(t, form("/folders", url.Values{"name": {" Trips/2024 "}})))
	assert.Equal(t, "Trips-2024", p.Get("folder"))
	assert.Empty(t, p.Get("err"))
	assert.Equal(t, []string{"Default", "Trips-2024"}, f.repo.ListFolderNames())

	p = redirectParams(t, f.do(t, form("/folders", url.Values{"name": {"Trips/2024"}})))
	assert.Equal(t, "1", p.Get("err"))
	assert.Contains(t, p.Get("msg"), "already exists")

	p = redirectParams(t, f.do(t, form("/folders", url.Values{"name": {" .. "}})))
	assert.Equal(t, "Invalid folder name", p.Get("msg"))

	// Flash shows on the page the redirect leads to.
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/?tab=upload&err=1&msg=Invalid+folder+name", nil))
	assert.Contains(t, w.Body.String(), `class="msg error"`)
}

func TestUploadForm(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.repo.CreateFolder(context.Background(), "Trips")
	require.NoError(t, err)

	body, ct := multipartBody(t, map[string]string{"folder": "Trips", "tags": "Beach, sunset"}, []part{
		{"one.png", "image/png", []byte("1")},
		{"notes.txt", "text/plain", []byte("x")},
		{"two.png", "image/png", []byte("2")},
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)

	p := redirectParams(t, f.do(t, req))
	assert.Empty(t, p.Get("err"))
	assert.Equal(t, "Trips", p.Get("folder"))
	assert.Contains(t, p.Get("msg"), "Uploaded 2 image(s)")
	assert.Contains(t, p.Get("msg"), "notes.txt")

	imgs := f.repo.AllImages()
	require.Len(t, imgs, 2)
	assert.Equal(t, "two.png", imgs[0].Name)
	assert.Equal(t, []string{"beach", "sunset"}, imgs[0].Tags)
}

func TestUploadFormErrors(t *testing.T) {
	f := newFixture(t, Options{})

	body, ct := multipartBody(t, map[string]string{"folder": "Default"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	p := redirectParams(t, f.do(t, req))
	assert.Equal(t, "1", p.Get("err"))
	assert.Equal(t, "Select at least one image", p.Get("msg"))

	body, ct = multipartBody(t, map[string]string{"folder": "Nope"}, []part{{"a.png", "image/png", []byte("a")}})
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	p = redirectParams(t, f.do(t, req))
	assert.Equal(t, "Folder does not exist", p.Get("msg"))
	assert.Zero(t, f.repo.Count())
}

func TestDeleteForm(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t)

	w := f.do(t, form("/images/img-1/delete", url.Values{"folder": {"Trips"}}))
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Equal(t, 3, f.repo.Count())

	req := form("/images/img-1/delete", url.Values{"confirm": {"yes"}})
	req.Header.Set("Referer", "http://example.test/?tab=search&q=beach")
	p := redirectParams(t, f.do(t, req))
	assert.Equal(t, "Image deleted", p.Get("msg"))
	assert.Equal(t, "beach", p.Get("q"), "search survives the redirect")
	assert.Equal(t, 2, f.repo.Count())
	_, found := f.repo.FindImage("img-1")
	assert.False(t, found)

	p = redirectParams(t, f.do(t, form("/images/img-1/delete", url.Values{"confirm": {"yes"}})))
	assert.Equal(t, "Image not found", p.Get("msg"))
	assert.Equal(t, 2, f.repo.Count())
}

func TestResetForm(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t)

	assert.Equal(t, http.StatusPreconditionRequired, f.do(t, form("/reset", nil)).Code)
	assert.Equal(t, 3, f.repo.Count())

	p := redirectParams(t, f.do(t, form("/reset", url.Values{"confirm": {"yes"}})))
	assert.Equal(t, "Gallery reset", p.Get("msg"))
	assert.Zero(t, f.repo.Count())
	assert.Equal(t, []string{"Default"}, f.repo.ListFolderNames())
}

func TestCrossSiteFormRejected(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t)
	confirm := url.Values{"confirm": {"yes"}}

	req := form("/reset", confirm)
	req.Header.Set("Origin", "https://elsewhere.test")
	assert.Equal(t, http.StatusForbidden, f.do(t, req).Code)

	req = form("/images/img-1/delete", url.Values{"confirm": {"yes"}, "folder": {"Trips"}})
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	assert.Equal(t, http.StatusForbidden, f.do(t, req).Code)

	req = jsonRequest(http.MethodDelete, "/api/document?confirm=true", "")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	assert.Equal(t, http.StatusForbidden, f.do(t, req).Code)
	assert.Equal(t, 3, f.repo.Count())

	req = form("/reset", confirm)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	assert.Equal(t, http.StatusSeeOther, f.do(t, req).Code)
	assert.Zero(t, f.repo.Count())
}

func TestDownloadAndThumbnail(t *testing.T) {
	f := newFixture(t, Options{ThumbnailEdge: 4})
	f.seed(t)
	svg := models.EncodeDataURL("image/svg+xml", []byte("<svg/>"))
	svgID, err := f.repo.AddImage(context.Background(), "Default", "", svg, nil)
	require.NoError(t, err)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/images/img-1/download", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename=beach.png`)
	assert.Equal(t, pngBytes(t, 8, 4), w.Body.Bytes())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/images/img-1/thumbnail", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	cfg, _, err := image.DecodeConfig(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width)
	assert.Equal(t, 2, cfg.Height)

	req := httptest.NewRequest(http.MethodGet, "/images/img-1/thumbnail", nil)
	req.Header.Set("If-None-Match", w.Header().Get("ETag"))
	assert.Equal(t, http.StatusNotModified, f.do(t, req).Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/images/"+svgID+"/thumbnail", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Equal(t, "<svg/>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "sandbox")
	assert.NotContains(t, csp, "script-src")

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/images/"+svgID+"/download", nil))
	assert.Contains(t, w.Header().Get("Content-Disposition"), svgID+".svg")

	assert.Equal(t, http.StatusNotFound, f.do(t, httptest.NewRequest(http.MethodGet, "/images/nope/download", nil)).Code)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAPIFolders(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, jsonRequest(http.MethodPost, "/api/folders", `{"name":"Trips"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"name":"Trips","images":0}`, w.Body.String())

	assert.Equal(t, http.StatusConflict, f.do(t, jsonRequest(http.MethodPost, "/api/folders", `{"name":"Trips"}`)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, jsonRequest(http.MethodPost, "/api/folders", `{"name":" .. "}`)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, jsonRequest(http.MethodPost, "/api/folders", `{`)).Code)

	_, err := f.repo.AddImage(context.Background(), "Trips", "a.png", models.EncodeDataURL("image/png", []byte("a")), nil)
	require.NoError(t, err)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/folders", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Default","images":0},{"name":"Trips","images":1}]`, w.Body.String())
}

func TestAPIImages(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/images?folder=Trips&tags=beach", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Matched int         `json:"matched"`
		Total   int         `json:"total"`
		Message string      `json:"message"`
		Images  []imageJSON `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Matched)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "Showing 1 of 3 images", resp.Message)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "beach.png", resp.Images[0].Name)
	assert.Empty(t, resp.Images[0].DataURL)
	assert.Equal(t, "/images/img-1/download", resp.Images[0].Download)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/images?include=data", nil))
	assert.Contains(t, w.Body.String(), "data:image/png;base64,")

	w = f.do(t, jsonRequest(http.MethodPost, "/api/images",
		`{"folder":"Trips","name":"new.png","dataUrl":"data:image/png;base64,AAAA","tags":["Sky"," sky ","blue"]}`))
	require.Equal(t, http.StatusCreated, w.Code)
	var created imageJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "img-4", created.ID)
	assert.Equal(t, []string{"sky", "blue"}, created.Tags)
	assert.Equal(t, 3, created.Bytes)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/images/img-4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dataUrl":"data:image/png;base64,AAAA"`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, jsonRequest(http.MethodPost, "/api/images",
		`{"folder":"Trips","dataUrl":"data:text/plain;base64,AAAA"}`)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, jsonRequest(http.MethodPost, "/api/images",
		`{"folder":"Trips","dataUrl":"data:image/png;base64,AAAA","tags":[1]}`)).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, jsonRequest(http.MethodPost, "/api/images",
		`{"folder":"Nope","dataUrl":"data:image/png;base64,AAAA"}`)).Code)
	assert.Equal(t, 4, f.repo.Count())
}

func TestAPIMultipartUpload(t *testing.T) {
	f := newFixture(t, Options{})
	body, ct := multipartBody(t, map[string]string{"folder": "Default", "tags": "x"}, []part{
		{"a.png", "image/png", []byte("a")},
		{"b.txt", "text/plain", []byte("b")},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/images", body)
	req.Header.Set("Content-Type", ct)

	w := f.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"folder":"Default","tags":["x"],"added":["img-1"],
		"skipped":[{"name":"b.txt","reason":"not an image"}]}`, w.Body.String())
}

func TestAPIDeleteAndReset(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t)

	assert.Equal(t, http.StatusPreconditionRequired,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/images/img-2", nil)).Code)
	assert.Equal(t, 3, f.repo.Count())

	assert.Equal(t, http.StatusNoContent,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/images/img-2?confirm=true", nil)).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/images/img-2?confirm=true", nil)).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/images/img-1?confirm=true&folder=Default", nil)).Code,
		"an id only matches inside its own folder")
	assert.Equal(t, 2, f.repo.Count())

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/document", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc models.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Folders["Trips"], 1)

	assert.Equal(t, http.StatusPreconditionRequired,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/document", nil)).Code)
	assert.Equal(t, http.StatusNoContent,
		f.do(t, httptest.NewRequest(http.MethodDelete, "/api/document?confirm=true", nil)).Code)
	assert.Zero(t, f.repo.Count())
}

func TestBasicAuthAndMCPMount(t *testing.T) {
	hash, err := middleware.HashPassword("pw")
	require.NoError(t, err)
	mcpHit := false
	f := newFixture(t, Options{
		AuthUser: "admin",
		AuthHash: hash,
		MCP:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { mcpHit = true }),
	})

	assert.Equal(t, http.StatusUnauthorized, f.do(t, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "pw")
	assert.Equal(t, http.StatusOK, f.do(t, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.SetBasicAuth("admin", "pw")
	f.do(t, req)
	assert.True(t, mcpHit)
}
