package constants

import "strings"

// DocumentFormat groups upload extensions by how their text is obtained.
type DocumentFormat string

const (
	TEXT DocumentFormat = "TEXT" // read as-is (UTF-8, invalid bytes replaced)
	PDF  DocumentFormat = "PDF"  // page text extracted
)

var extToFormat = map[string]DocumentFormat{
	"txt":      TEXT,
	"md":       TEXT,
	"markdown": TEXT,
	"csv":      TEXT,
	"json":     TEXT,
	"log":      TEXT,
	"html":     TEXT,
	"xml":      TEXT,
	"pdf":      PDF,
}

// MapExtToFormat returns the document format for a file extension
// (with or without the leading dot), or "" when unsupported.
func MapExtToFormat(ext string) DocumentFormat {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return extToFormat[ext]
}
