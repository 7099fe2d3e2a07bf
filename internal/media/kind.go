package media

import (
	"net/url"
	"path"
	"strings"
)

type Kind string

const (
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Item is one resolved media entry of a chunk. Offset is global within the campaign.
type Item struct {
	Offset int
	URL    string
	Kind   Kind
}

var photoExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

var videoExt = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

var documentExt = map[string]string{
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".mp3":  "audio/mpeg",
	".heic": "image/heic",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

func ext(name string) string {
	p := name
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// Classify infers the item kind from the file extension only. Unknown
// extensions are documents.
func Classify(name string) Kind {
	e := ext(name)
	if _, ok := photoExt[e]; ok {
		return KindPhoto
	}
	if _, ok := videoExt[e]; ok {
		return KindVideo
	}
	return KindDocument
}

// MIMEType is the upload content type for name, application/octet-stream when unknown.
func MIMEType(name string) string {
	e := ext(name)
	for _, m := range []map[string]string{photoExt, videoExt, documentExt} {
		if t, ok := m[e]; ok {
			return t
		}
	}
	return "application/octet-stream"
}

// FileName is the unescaped last path segment of rawURL.
func FileName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}
