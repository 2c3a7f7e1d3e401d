package tsv

import (
	"bytes"
	"io"
	"strings"
)

const tailChunk = 4096

type tailLine struct {
	offset     int64
	text       string
	terminated bool
}

// tailLines returns up to n lines from the end of r, oldest first. A final
// line without a trailing newline is returned with terminated unset.
func tailLines(r io.ReaderAt, size int64, n int) ([]tailLine, error) {
	if size == 0 || n <= 0 {
		return nil, nil
	}

	pos := size
	var buf []byte
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		read := min(int64(tailChunk), pos)
		pos -= read
		chunk := make([]byte, read)
		if _, err := r.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
	}

	text := string(buf)
	terminated := strings.HasSuffix(text, "\n")
	parts := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	lines := make([]tailLine, 0, len(parts))
	offset := pos
	for i, part := range parts {
		// The first part is a fragment unless the scan reached the file start.
		if i > 0 || pos == 0 {
			lines = append(lines, tailLine{offset: offset, text: part, terminated: true})
		}
		offset += int64(len(part)) + 1
	}
	if len(lines) > 0 && !terminated {
		lines[len(lines)-1].terminated = false
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
