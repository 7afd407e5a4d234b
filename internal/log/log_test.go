package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetOutputWhileLogging(t *testing.T) {
	t.Cleanup(func() { SetOutput(os.Stderr) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Info("background", "n", j)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		SetOutput(io.Discard)
	}
	wg.Wait()

	var out syncBuffer
	SetOutput(&out)
	Info("after swap", "component", "test")
	if !strings.Contains(out.String(), "after swap") {
		t.Fatalf("message missing from output: %q", out.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var out syncBuffer
	SetOutput(&out)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Info("hidden")
	Error("shown", errors.New("boom"))

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("info line written at warn level: %q", got)
	}
	if !strings.Contains(got, "shown") || !strings.Contains(got, "boom") {
		t.Fatalf("error line missing: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
