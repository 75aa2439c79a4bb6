package server

import "strings"

// LineBuffer accumulates received bytes until they end with a newline.
// Content without a trailing newline is kept and completed by later chunks.
// The zero value is an empty buffer.
type LineBuffer struct {
	buf []byte
}

// Append adds p to the buffer.
func (b *LineBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// Ready reports whether the buffer holds complete lines only.
func (b *LineBuffer) Ready() bool {
	return len(b.buf) > 0 && b.buf[len(b.buf)-1] == '\n'
}

// TakeAll returns the buffered text and empties the buffer.
func (b *LineBuffer) TakeAll() string {
	s := string(b.buf)
	b.buf = b.buf[:0]
	return s
}

// Len returns the number of buffered bytes.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// splitLines splits complete buffer content into lines, removing each line's
// terminator ("\n", "\r\n" or "\r"). Text after the last newline, if any, is
// returned as a final line.
func splitLines(s string) []string {
	var lines []string
	for s != "" {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, chomp(s))
			break
		}
		lines = append(lines, chomp(s[:i+1]))
		s = s[i+1:]
	}
	return lines
}

// chomp removes one trailing line terminator.
func chomp(s string) string {
	switch {
	case len(s) >= 2 && s[len(s)-2:] == "\r\n":
		return s[:len(s)-2]
	case len(s) >= 1 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r'):
		return s[:len(s)-1]
	}
	return s
}
