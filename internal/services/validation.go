package services

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"trafficsentinel/internal/models"
)

// sniffLen is the number of leading bytes inspected to detect the content type.
const sniffLen = 512

// Extensions OpenCV can decode. ALLOWED_EXTENSIONS narrows this set; anything
// outside it is always rejected.
var videoExtensions = map[string]bool{
	"mp4":  true,
	"avi":  true,
	"mov":  true,
	"m4v":  true,
	"mkv":  true,
	"webm": true,
	"mpg":  true,
	"mpeg": true,
}

var imageContentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// SupportedExtension reports whether ext (without the dot, any case) is a
// media type the processor can read.
func SupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	_, image := imageContentTypes[ext]
	return image || videoExtensions[ext]
}

// extension returns the lower-case extension of name without the dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// MediaTypeFor returns the media type implied by a file name.
func MediaTypeFor(name string) string {
	if videoExtensions[extension(name)] {
		return models.MediaVideo
	}
	return models.MediaImage
}

// sniff reads the head of r and returns it with the detected content type.
func sniff(r io.Reader) ([]byte, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", err
	}
	head = head[:n]
	return head, http.DetectContentType(head), nil
}

// contentMatches reports whether a sniffed content type is plausible for the
// extension. Container formats the sniffer does not know are accepted as
// application/octet-stream.
func contentMatches(ext, contentType string) bool {
	if want, ok := imageContentTypes[ext]; ok {
		return contentType == want
	}
	if videoExtensions[ext] {
		return strings.HasPrefix(contentType, "video/") || contentType == "application/octet-stream"
	}
	return false
}

// cleanFilename keeps only the base name of a client supplied file name.
func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
