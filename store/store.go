// Package store reads and writes msgpack+zstd files. Writes are atomic: the
// payload goes to a temp file in the target directory which is then renamed
// into place.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Ext is the conventional file extension.
const Ext = ".msgpack.zst"

// Header leads every file so readers can reject foreign or stale payloads.
type Header struct {
	Kind    string `msgpack:"kind"`
	Version int    `msgpack:"version"`
}

type envelope struct {
	Header  Header             `msgpack:"header"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Write encodes obj under h and atomically replaces path.
func Write(path string, h Header, obj any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	payload, err := msgpack.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", h.Kind, err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		// gone already after a successful rename
		_ = os.Remove(tmpName)
	}()

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(&envelope{Header: h, Payload: payload}); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write %s: %w", h.Kind, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

// Read decodes path into obj after checking its header matches want.
func Read(path string, want Header, obj any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var env envelope
	if err := msgpack.NewDecoder(zr).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if env.Header.Kind != want.Kind {
		return fmt.Errorf("%s holds %q, want %q", path, env.Header.Kind, want.Kind)
	}
	if env.Header.Version != want.Version {
		return fmt.Errorf("%s: %s version %d, want %d", path, want.Kind, env.Header.Version, want.Version)
	}
	if err := msgpack.Unmarshal(env.Payload, obj); err != nil {
		return fmt.Errorf("decode %s payload: %w", want.Kind, err)
	}
	return nil
}
