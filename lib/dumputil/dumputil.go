package dumputil

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

// FilesystemOutput writes debug artifacts (screenshots, html snapshots, http
// exchanges) into one directory. Writes never fail the caller, problems are
// only logged.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput creates dir. An output whose directory could not be
// created drops every write.
func NewFilesystemOutput(dir string) FilesystemOutput {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create artifact directory", "dir", dir, "err", err)
		return FilesystemOutput{}
	}
	return FilesystemOutput{directory: dir}
}

func (o FilesystemOutput) Dir() string {
	return o.directory
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Name turns a step label into a file name.
func Name(label, ext string) string {
	name := unsafeChars.ReplaceAllString(label, "_")
	if name == "" {
		name = "artifact"
	}
	return name + ext
}

func (o FilesystemOutput) Write(id string, contents []byte) {
	if o.directory == "" {
		return
	}
	path := filepath.Join(o.directory, filepath.Base(id))
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		slog.Warn("failed to write artifact", "id", id, "err", err)
	}
}
