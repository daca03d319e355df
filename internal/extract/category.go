package extract

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// CategoryMisc is used when neither the extension nor the MIME type is known
const CategoryMisc = "misc"

var extensionCategories = map[string]string{
	".jpg": "images", ".jpeg": "images", ".png": "images", ".gif": "images",
	".bmp": "images", ".webp": "images", ".svg": "images", ".ico": "images",
	".tiff": "images", ".tif": "images", ".heic": "images", ".heif": "images",
	".avif": "images", ".raw": "images", ".cr2": "images", ".nef": "images",
	".arw": "images", ".psd": "images",

	".mp4": "videos", ".mkv": "videos", ".avi": "videos", ".mov": "videos",
	".wmv": "videos", ".flv": "videos", ".webm": "videos", ".m4v": "videos",
	".mpeg": "videos", ".mpg": "videos", ".3gp": "videos",

	".mp3": "audio", ".wav": "audio", ".flac": "audio", ".aac": "audio",
	".ogg": "audio", ".wma": "audio", ".m4a": "audio", ".aiff": "audio",
	".opus": "audio", ".alac": "audio",

	".pdf": "documents", ".doc": "documents", ".docx": "documents",
	".txt": "documents", ".rtf": "documents", ".odt": "documents",
	".pages": "documents", ".md": "documents", ".markdown": "documents",
	".tex": "documents",

	".xls": "spreadsheets", ".xlsx": "spreadsheets", ".csv": "spreadsheets",
	".ods": "spreadsheets", ".numbers": "spreadsheets",

	".ppt": "presentations", ".pptx": "presentations", ".key": "presentations",
	".odp": "presentations",

	".zip": "archives", ".rar": "archives", ".7z": "archives", ".tar": "archives",
	".gz": "archives", ".bz2": "archives", ".xz": "archives", ".tgz": "archives",

	".py": "code", ".js": "code", ".ts": "code", ".jsx": "code", ".tsx": "code",
	".html": "code", ".htm": "code", ".css": "code", ".scss": "code",
	".less": "code", ".java": "code", ".c": "code", ".cpp": "code", ".h": "code",
	".hpp": "code", ".cs": "code", ".go": "code", ".rs": "code", ".rb": "code",
	".php": "code", ".swift": "code", ".kt": "code", ".scala": "code",
	".r": "code", ".sql": "code", ".sh": "code", ".bat": "code", ".ps1": "code",

	".json": "data", ".xml": "data", ".yaml": "data", ".yml": "data",
	".toml": "data", ".ini": "data", ".cfg": "data", ".conf": "data",

	".exe": "installers", ".msi": "installers", ".dmg": "installers",
	".pkg": "installers", ".deb": "installers", ".rpm": "installers",
	".app": "installers", ".apk": "installers",

	".ttf": "fonts", ".otf": "fonts", ".woff": "fonts", ".woff2": "fonts",
	".eot": "fonts",

	".obj": "3d-models", ".stl": "3d-models", ".fbx": "3d-models",
	".blend": "3d-models", ".dae": "3d-models", ".3ds": "3d-models",

	".epub": "ebooks", ".mobi": "ebooks", ".azw": "ebooks", ".azw3": "ebooks",
}

// mimeCategories maps MIME prefixes to categories, most specific first
var mimeCategories = []struct{ prefix, category string }{
	{"application/pdf", "documents"},
	{"application/zip", "archives"},
	{"application/x-rar", "archives"},
	{"application/x-7z", "archives"},
	{"image/", "images"},
	{"video/", "videos"},
	{"audio/", "audio"},
	{"text/", "documents"},
}

// mediaExtensions are the images, video and audio formats that count against an index quota
var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".bmp": {}, ".tiff": {}, ".tif": {}, ".heic": {}, ".heif": {}, ".avif": {},
	".raw": {}, ".cr2": {}, ".nef": {}, ".arw": {},
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".wmv": {}, ".flv": {},
	".webm": {}, ".m4v": {},
	".mp3": {}, ".wav": {}, ".m4a": {}, ".aac": {}, ".flac": {}, ".ogg": {},
	".wma": {}, ".aiff": {}, ".alac": {},
}

// visionExtensions are image formats a vision model accepts as raw bytes
var visionExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Ext returns the lowercased extension of path, including the dot
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Category maps a file to its catalog category. The extension decides first,
// then the MIME type, then CategoryMisc.
func Category(path, mimeType string) string {
	if c, ok := extensionCategories[Ext(path)]; ok {
		return c
	}
	mimeType = strings.ToLower(mimeType)
	for _, m := range mimeCategories {
		if strings.HasPrefix(mimeType, m.prefix) {
			return m.category
		}
	}
	return CategoryMisc
}

// IsMedia reports whether path is billable media
func IsMedia(path string) bool {
	_, ok := mediaExtensions[Ext(path)]
	return ok
}

// VisionMediaType returns the media type to send with image bytes, or false
// when the format is not accepted by vision models
func VisionMediaType(path string) (string, bool) {
	mt, ok := visionExtensions[Ext(path)]
	return mt, ok
}

// DetectMIME sniffs the file content. It returns "" when the file can't be read.
func DetectMIME(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	mt, _, _ := strings.Cut(m.String(), ";")
	return mt
}

// isTextMIME reports whether a sniffed type is readable as plain text
func isTextMIME(path string) bool {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
