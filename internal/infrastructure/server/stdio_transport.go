package server

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// LineTransport frames JSON-RPC messages as newline delimited lines over a
// reader and a writer.
type LineTransport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex
}

// NewLineTransport creates a transport reading from r and writing to w.
func NewLineTransport(r io.Reader, w io.Writer) *LineTransport {
	return &LineTransport{
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
	}
}

// ReadLine returns the next line without its terminator. A final line that
// is not newline terminated is still returned; io.EOF follows it.
func (t *LineTransport) ReadLine() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return trimLineEnding(line), nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "error reading line")
	}
	return trimLineEnding(line), nil
}

// Send writes message as a single line and flushes it.
func (t *LineTransport) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "error marshalling message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return errors.Wrap(err, "error writing message")
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "error writing newline")
	}
	if err := t.writer.Flush(); err != nil {
		return errors.Wrap(err, "error flushing writer")
	}

	return nil
}

func trimLineEnding(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}
