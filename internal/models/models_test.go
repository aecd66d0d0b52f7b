package models

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeFolderName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Trips", "Trips"},
		{"  Trips 2024  ", "Trips 2024"},
		{"a/b\\c", "a-b-c"},
		{"../../etc", "--etc"},
		{"..", ""},
		{"hello<script>", "helloscript"},
		{"ทริป เชียงใหม่", "ทริป เชียงใหม่"},
		{"v1.2_final-cut", "v1.2_final-cut"},
		{"@#$%", ""},
		{"", ""},
		{".!.", ""},
		{"a.#./etc", "a-etc"},
		{"...", "."},
		{"x. <.>.y", "x. .y"},
	}
	for _, tt := range tests {
		got := SanitizeFolderName(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeFolderName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := SanitizeFolderName(got); again != got {
			t.Errorf("SanitizeFolderName(%q) = %q, not stable", got, again)
		}
		if strings.Contains(got, "..") {
			t.Errorf("SanitizeFolderName(%q) = %q keeps a parent reference", tt.in, got)
		}
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags(" Beach, sunset ,,BEACH , ")
	want := []string{"beach", "sunset"}
	if len(got) != len(want) {
		t.Fatalf("ParseTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseTags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := ParseTags("   "); got == nil || len(got) != 0 {
		t.Errorf("ParseTags(blank) = %#v, want empty non-nil", got)
	}
}

func TestDataURL(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nrest")
	uri := EncodeDataURL("image/png", payload)

	mediaType, got, err := DecodeDataURL(uri)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if mediaType != "image/png" || string(got) != string(payload) {
		t.Errorf("DecodeDataURL = %q, %q", mediaType, got)
	}
	if n := DataURLSize(uri); n != len(payload) {
		t.Errorf("DataURLSize = %d, want %d", n, len(payload))
	}

	for _, bad := range []string{"", "image/png;base64,AAAA", "data:image/png,plain", "data:image/png;base64,!!"} {
		if _, _, err := DecodeDataURL(bad); !errors.Is(err, ErrInvalidDataURL) {
			t.Errorf("DecodeDataURL(%q) err = %v", bad, err)
		}
	}
	if n := DataURLSize("not a data url"); n != 0 {
		t.Errorf("DataURLSize(invalid) = %d", n)
	}
}

func TestDocumentCloneAndCount(t *testing.T) {
	doc := NewDocument()
	doc.Folders["Trips"] = []Image{{ID: "1", Tags: []string{"a"}}, {ID: "2"}}
	if doc.Count() != 2 {
		t.Errorf("Count = %d", doc.Count())
	}
	cp := doc.Clone()
	cp.Folders["Trips"][0].Tags[0] = "z"
	if doc.Folders["Trips"][0].Tags[0] != "a" {
		t.Error("Clone shares tag slices")
	}
}
