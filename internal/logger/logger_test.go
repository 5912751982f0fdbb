package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("scroll page %d for %s", 3, "socorro201501")

	if got := buf.String(); got != "[DEBUG] scroll page 3 for socorro201501\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestQuietLevels_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("debug")
	Info("info")
	Warn("warn")

	if buf.Len() > 0 {
		t.Errorf("expected no output when verbose is disabled, got %q", buf.String())
	}
}

func TestInfoAndWarn(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Info("created index %s", "socorro201501")
	Warn("skipping platform %q", "BogusOS")

	want := "[INFO] created index socorro201501\n[WARN] skipping platform \"BogusOS\"\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestErrorAndCritical_AlwaysPrinted(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Error("bulk dead letter failed: %v", "closed")
	Critical("submission to store failed for %s (%s)", "abc", "boom")

	want := "[ERROR] bulk dead letter failed: closed\n[CRITICAL] submission to store failed for abc (boom)\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected output: %q", got)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestConcurrentAccess(t *testing.T) {
	defer reset()

	out := &lockedBuffer{}
	SetOutput(out)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(true)
			Debug("concurrent %d", i)
			Critical("concurrent %d", i)
			IsVerbose()
		}()
	}
	wg.Wait()
}
