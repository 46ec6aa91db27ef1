package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// VerifyWAV checks that the file carries a plausible WAV header: at least 44
// bytes, starting with "RIFF" and containing "WAVE".
func VerifyWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("reading wav header of %s: %w", path, err)
	}

	if !bytes.HasPrefix(header, []byte("RIFF")) {
		return fmt.Errorf("%s: missing RIFF marker", path)
	}
	if !bytes.Contains(header, []byte("WAVE")) {
		return fmt.Errorf("%s: missing WAVE marker", path)
	}
	return nil
}
