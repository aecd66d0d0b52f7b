package upload

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// File is one selected file: a name, a declared media type and its bytes.
type File interface {
	Name() string
	MediaType() string
	Open() (io.ReadCloser, error)
}

type multipartFile struct{ h *multipart.FileHeader }

// FromMultipart adapts the files of an HTML form upload. The media type is
// the one the browser declared.
func FromMultipart(headers []*multipart.FileHeader) []File {
	files := make([]File, 0, len(headers))
	for _, h := range headers {
		files = append(files, multipartFile{h})
	}
	return files
}

func (f multipartFile) Name() string                 { return f.h.Filename }
func (f multipartFile) MediaType() string            { return f.h.Header.Get("Content-Type") }
func (f multipartFile) Open() (io.ReadCloser, error) { return f.h.Open() }

type localFile struct {
	path      string
	mediaType string
}

// FromPath adapts a file on disk. The media type comes from the extension,
// falling back to content sniffing.
func FromPath(p string) (File, error) {
	mt := mime.TypeByExtension(filepath.Ext(p))
	if mt == "" {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		head := make([]byte, 512)
		n, err := io.ReadFull(f, head)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, err
		}
		mt = http.DetectContentType(head[:n])
	}
	return localFile{path: p, mediaType: mt}, nil
}

func (f localFile) Name() string                 { return filepath.Base(f.path) }
func (f localFile) MediaType() string            { return f.mediaType }
func (f localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// Bytes is an in-memory file.
type Bytes struct {
	FileName string
	Type     string
	Data     []byte
}

func (b Bytes) Name() string                 { return b.FileName }
func (b Bytes) MediaType() string            { return b.Type }
func (b Bytes) Open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b.Data)), nil }
