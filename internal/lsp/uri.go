package lsp

import (
	"path/filepath"
	"runtime"
	"strings"
)

// FilePathToURI converts a file path to a file:// URI.
func FilePathToURI(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "\\", "/")
		return "file:///" + strings.ReplaceAll(path, ":", "%3A")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path
}

// URIToFilePath converts a file:// URI back to a file path.
func URIToFilePath(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	uri = strings.ReplaceAll(uri, "%3A", ":")
	return filepath.FromSlash(uri)
}
