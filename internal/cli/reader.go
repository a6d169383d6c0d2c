package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads lines from a terminal without blocking past context
// cancellation.
type LineReader struct {
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without surrounding whitespace. An
// abandoned read keeps running in the background and its line is lost.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	type result struct {
		err  error
		line string
	}
	ch := make(chan result, 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		line, err := r.reader.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-ch:
		return res.line, res.err
	}
}

// Ask writes question to w and reads the answer.
func (r *LineReader) Ask(ctx context.Context, w io.Writer, question string) (string, error) {
	if _, err := fmt.Fprint(w, FormatPrompt(question)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	return r.ReadLine(ctx)
}
