package server

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTransportReadLine(t *testing.T) {
	tr := NewLineTransport(strings.NewReader("first\r\n\nsecond\nlast"), io.Discard)

	var lines []string
	for {
		line, err := tr.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}

	assert.Equal(t, []string{"first", "", "second", "last"}, lines)
}

func TestLineTransportReadLineEmptyInput(t *testing.T) {
	tr := NewLineTransport(strings.NewReader(""), io.Discard)
	_, err := tr.ReadLine()
	assert.Equal(t, io.EOF, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLineTransportReadError(t *testing.T) {
	tr := NewLineTransport(failingReader{}, io.Discard)
	_, err := tr.ReadLine()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NotEqual(t, io.EOF, err)
}

func TestLineTransportSend(t *testing.T) {
	var out bytes.Buffer
	tr := NewLineTransport(strings.NewReader(""), &out)

	require.NoError(t, tr.Send(map[string]int{"a": 1}))
	require.NoError(t, tr.Send([]string{"b"}))

	assert.Equal(t, "{\"a\":1}\n[\"b\"]\n", out.String())
}

func TestLineTransportSendUnmarshalable(t *testing.T) {
	var out bytes.Buffer
	tr := NewLineTransport(strings.NewReader(""), &out)

	err := tr.Send(make(chan int))
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestLineTransportConcurrentSend(t *testing.T) {
	var out bytes.Buffer
	tr := NewLineTransport(strings.NewReader(""), &out)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Send(map[string]string{"message": "hello"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Len(t, lines, 50)
	for _, line := range lines {
		assert.Equal(t, `{"message":"hello"}`, line)
	}
}
