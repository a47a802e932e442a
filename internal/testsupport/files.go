package testsupport

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// patternReader yields an endless stream of one byte value.
type patternReader byte

func (p patternReader) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = byte(p)
	}
	return len(b), nil
}

// WriteFile creates path (and any missing parent directories) holding
// size bytes of filler. A size <= 0 still produces a non-empty file so
// existence checks on fixtures behave like real media files.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, patternReader(0xA5), size); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
