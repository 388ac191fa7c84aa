package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer persists generated content. Implementations return the path they wrote.
type Writer interface {
	Write(ctx context.Context, name, content string) (string, error)
}

// FileWriter writes files inside a single output directory.
type FileWriter struct {
	dir string
}

// NewFileWriter creates a FileWriter rooted at dir. The directory is created on
// first write.
func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir}
}

// Dir returns the output directory.
func (w *FileWriter) Dir() string { return w.dir }

// Write stores content under name, which must stay inside the output
// directory. The file appears atomically: it is written to a temp file and
// renamed into place.
func (w *FileWriter) Write(ctx context.Context, name, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := w.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return path, nil
}

func (w *FileWriter) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path %q not allowed", name)
	}
	root, err := filepath.Abs(w.dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	path := filepath.Join(root, name)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes output directory", name)
	}
	return path, nil
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema_description:"File name relative to the output directory"`
	Content string `json:"content" jsonschema_description:"Full file content"`
}

// WriteFileTool exposes a Writer to the model as the write_file tool.
func WriteFileTool(w Writer) Tool {
	return New("write_file", "Write content to a file in the output directory",
		func(ctx context.Context, a writeFileArgs) (string, error) {
			path, err := w.Write(ctx, a.Path, a.Content)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(a.Content), path), nil
		})
}
