package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/klauspost/compress/gzip"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	payloadFilePrefix = "payload-"
	payloadFileExt    = ".json"
	gzipExt           = ".gz"
)

// FileStore writes payloads to the workspace directory. Each payload is
// written to a temporary file first and renamed into place once complete, so
// readers never observe a partial payload.
type FileStore struct {
	dir      string
	compress bool
	log      log.Logger
}

// NewFileStore creates a FileStore rooted at dir
func NewFileStore(dir string, compress bool, logger log.Logger) *FileStore {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &FileStore{dir: dir, compress: compress, log: logger}
}

func (s *FileStore) Name() string { return "file" }

// Path returns the file a payload with the given run ID is stored at
func (s *FileStore) Path(runID string) string {
	name := payloadFilePrefix + safeFilename(runID) + payloadFileExt
	if s.compress {
		name += gzipExt
	}
	return filepath.Join(s.dir, name)
}

// Dispatch stores the payload
func (s *FileStore) Dispatch(ctx context.Context, payload *types.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".payload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp payload file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpPath)
	}()

	if err := s.write(tmp, payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp payload file: %w", err)
	}

	path := s.Path(payload.RunID)
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move payload into place: %w", err)
	}
	s.log.Debug("Saved payload", "path", path, "results", len(payload.TestRun.Results))
	return nil
}

func (s *FileStore) write(w io.Writer, payload *types.Payload) error {
	if s.compress {
		zw := gzip.NewWriter(w)
		if err := encodePayload(zw, payload); err != nil {
			_ = zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress payload: %w", err)
		}
		return nil
	}
	return encodePayload(w, payload)
}

// ReadPayload loads a payload written by a FileStore. Compressed files are
// detected from their extension.
func ReadPayload(path string) (*types.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, gzipExt) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed payload: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var payload types.Payload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	payload.RunID = runIDFromPath(path)
	return &payload, nil
}

func encodePayload(w io.Writer, payload *types.Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return nil
}

func runIDFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), gzipExt)
	name = strings.TrimSuffix(name, payloadFileExt)
	return strings.TrimPrefix(name, payloadFilePrefix)
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
