package queryparser

import "regexp"

type typePattern struct {
	name       string
	re         *regexp.Regexp
	extensions []string
}

var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".ico", ".svg",
	".heic", ".heif", ".avif", ".raw", ".cr2", ".nef", ".arw",
}

// typePatterns are tried in order; the first match sets the filter
var typePatterns = []typePattern{
	{"screenshots", regexp.MustCompile(`\bscreenshots?\b`), []string{".png", ".jpg", ".jpeg", ".webp"}},
	{"images", regexp.MustCompile(`\b(?:images?|photos?|pictures?|thumbnails?|jpe?gs?|pngs?|gifs?|webps?)\b`), imageExtensions},
	{"documents", regexp.MustCompile(`\b(?:documents?|docs?|docx|word|texts?|txt)\b`), []string{".doc", ".docx", ".txt", ".rtf", ".odt", ".md", ".tex"}},
	{"pdfs", regexp.MustCompile(`\bpdfs?\b`), []string{".pdf"}},
	{"spreadsheets", regexp.MustCompile(`\b(?:spreadsheets?|excel|xlsx?|csv)\b`), []string{".xls", ".xlsx", ".csv"}},
	{"videos", regexp.MustCompile(`\b(?:videos?|movies?|mp4|mkv|avi)\b`), []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v"}},
	{"audio", regexp.MustCompile(`\b(?:audios?|music|songs?|mp3|wav)\b`), []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a"}},
	{"code", regexp.MustCompile(`\b(?:code|scripts?|python|javascript|html|css)\b`), []string{
		".py", ".js", ".ts", ".html", ".css", ".java", ".cpp", ".c", ".h", ".cs",
		".go", ".rs", ".rb", ".php", ".swift", ".kt",
	}},
}

// TypeExtensions returns the extension set for a named type filter
func TypeExtensions(name string) ([]string, bool) {
	for _, p := range typePatterns {
		if p.name == name {
			return append([]string(nil), p.extensions...), true
		}
	}
	return nil, false
}

// extractType sets the first matching type filter and strips every type word from text
func extractType(text string) (name string, exts []string, rest string) {
	rest = text
	for _, p := range typePatterns {
		if !p.re.MatchString(rest) {
			continue
		}
		if name == "" {
			name = p.name
			exts = append([]string(nil), p.extensions...)
		}
		rest = p.re.ReplaceAllString(rest, " ")
	}
	return name, exts, rest
}
