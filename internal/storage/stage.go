package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StagedFile is a local copy of an object. Remove deletes it together with
// its private directory.
type StagedFile struct {
	Path string
	Size int64
	dir  string
}

func (f StagedFile) Remove() error {
	if f.dir == "" {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// Stage copies the object at key into a fresh directory under baseDir (the
// system temp dir when empty). The local file keeps the key's base name so
// format detection by extension still works. Objects larger than maxBytes
// fail with ErrObjectTooLarge; maxBytes <= 0 disables the cap.
func Stage(ctx context.Context, store ObjectReader, key, baseDir string, maxBytes int64) (StagedFile, error) {
	if store == nil {
		return StagedFile{}, fmt.Errorf("object store is required")
	}
	name := localFileName(key)
	if name == "" {
		return StagedFile{}, fmt.Errorf("invalid object key: %q", key)
	}

	info, err := store.Stat(ctx, key)
	if err != nil {
		return StagedFile{}, err
	}
	if maxBytes > 0 && info.Size > maxBytes {
		return StagedFile{}, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrObjectTooLarge, key, info.Size, maxBytes)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		return StagedFile{}, err
	}
	defer func() { _ = reader.Close() }()

	dir, err := os.MkdirTemp(baseDir, "duckgrid-stage-")
	if err != nil {
		return StagedFile{}, fmt.Errorf("create staging dir: %w", err)
	}
	staged := StagedFile{Path: filepath.Join(dir, name), dir: dir}

	var body io.Reader = reader
	if maxBytes > 0 {
		// The object may grow between Stat and Get.
		body = io.LimitReader(reader, maxBytes+1)
	}
	size, err := writeFile(ctx, staged.Path, body)
	if err != nil {
		_ = staged.Remove()
		return StagedFile{}, fmt.Errorf("write staged file for %q: %w", key, err)
	}
	if maxBytes > 0 && size > maxBytes {
		_ = staged.Remove()
		return StagedFile{}, fmt.Errorf("%w: %q grew past %d bytes while staging", ErrObjectTooLarge, key, maxBytes)
	}
	staged.Size = size
	return staged, nil
}

func localFileName(key string) string {
	base := path.Base(strings.TrimSpace(key))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	base = strings.ReplaceAll(base, "\\", "_")
	return base
}

func writeFile(ctx context.Context, target string, reader io.Reader) (int64, error) {
	file, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	n, err := io.Copy(file, contextReader{ctx: ctx, reader: reader})
	if err != nil {
		return n, err
	}
	return n, file.Sync()
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}
