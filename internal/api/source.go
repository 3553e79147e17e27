package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/observability"
	"github.com/duckgrid/duckgrid/internal/storage"
)

// requestError is a failure detected by the host before a reader runs.
type requestError struct {
	status    int
	code      string
	message   string
	retryable bool
	context   map[string]any
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(code, message string) *requestError {
	return &requestError{status: http.StatusBadRequest, code: code, message: message}
}

// source is a local file a reader can open. release removes any staged copy.
type source struct {
	path    string
	release func()
}

// resolveSource turns a path or object reference into a local absolute path.
// Paths must be absolute and, when a data root is configured, inside it.
func resolveSource(ctx context.Context, cfg config.Config, store storage.ObjectReader, rawPath, objectKey string) (source, error) {
	rawPath = strings.TrimSpace(rawPath)
	objectKey = strings.TrimSpace(objectKey)
	switch {
	case rawPath == "" && objectKey == "":
		return source{}, badRequest("SOURCE_REQUIRED", "one of path or object is required")
	case rawPath != "" && objectKey != "":
		return source{}, badRequest("SOURCE_CONFLICT", "specify only one of path or object")
	case objectKey != "":
		return stageObject(ctx, cfg, store, objectKey)
	}

	if !filepath.IsAbs(rawPath) {
		return source{}, badRequest("PATH_NOT_ABSOLUTE", "path must be absolute")
	}
	cleaned := filepath.Clean(rawPath)
	if cfg.Reader.DataRoot != "" && !withinRoot(cfg.Reader.DataRoot, cleaned) {
		return source{}, &requestError{
			status:  http.StatusForbidden,
			code:    "PATH_OUTSIDE_DATA_ROOT",
			message: "path is outside the configured data root",
			context: map[string]any{"path": rawPath},
		}
	}
	if _, err := os.Stat(cleaned); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return source{}, &requestError{status: http.StatusNotFound, code: "FILE_NOT_FOUND", message: "file does not exist", context: map[string]any{"path": rawPath}}
		}
		return source{}, &requestError{status: http.StatusInternalServerError, code: "FILE_UNREADABLE", message: err.Error(), retryable: true}
	}
	return source{path: cleaned, release: func() {}}, nil
}

func stageObject(ctx context.Context, cfg config.Config, store storage.ObjectReader, key string) (source, error) {
	if store == nil {
		return source{}, &requestError{status: http.StatusNotImplemented, code: "OBJECT_STORE_NOT_CONFIGURED", message: "object sources are not enabled"}
	}
	staged, err := storage.Stage(ctx, store, key, cfg.ObjectStore.StagingDir, cfg.ObjectStore.MaxObjectBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return source{}, &requestError{status: http.StatusNotFound, code: "OBJECT_NOT_FOUND", message: "object was not found", context: map[string]any{"object": key}}
		}
		if errors.Is(err, storage.ErrObjectTooLarge) {
			return source{}, &requestError{status: http.StatusRequestEntityTooLarge, code: "OBJECT_TOO_LARGE", message: "object exceeds the staging size limit", context: map[string]any{"object": key, "max_bytes": cfg.ObjectStore.MaxObjectBytes}}
		}
		return source{}, &requestError{status: http.StatusBadGateway, code: "OBJECT_STORE_ERROR", message: "failed to stage object", retryable: true, context: map[string]any{"details": err.Error()}}
	}
	observability.ObserveObjectStaged(staged.Size)
	return source{path: staged.Path, release: func() { _ = staged.Remove() }}, nil
}

// withinRoot resolves symlinks where possible so a link inside the root
// cannot point outside it.
func withinRoot(root, target string) bool {
	root = filepath.Clean(root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
