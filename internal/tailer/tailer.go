package tailer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/watcher"
)

const (
	checkpointInterval = 5 * time.Second
	reconnectAttempts  = 5
)

// Offsets persists per-file read positions. *store.Store satisfies it.
type Offsets interface {
	Offset(path string) (int64, bool)
	SetOffset(path string, offset int64)
	Save() error
}

// Options tunes a Tailer.
type Options struct {
	// FromStart reads files without a saved offset from the beginning
	// instead of the end.
	FromStart bool
	// ManualCommit leaves recording read positions to the consumer, which
	// calls Offsets.SetOffset once it has finished with a line. The tailer
	// still resets rotated files and saves checkpoints.
	ManualCommit bool
	Logger       *zap.Logger
}

// Tailer reads newly appended lines from watched files and emits RawLine values.
type Tailer struct {
	mu      sync.Mutex
	files   map[string]*trackedFile
	out     chan model.RawLine
	offsets Offsets
	events  <-chan watcher.Event
	watch   *watcher.Watcher
	opts    Options
	logger  *zap.Logger
	retryIn time.Duration
}

type trackedFile struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	offset  int64  // end of the last emitted line
	partial string // bytes after offset without a trailing newline
}

// New creates a Tailer that reads events from the given Watcher.
func New(w *watcher.Watcher, offsets Offsets, opts Options) *Tailer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tailer{
		files:   make(map[string]*trackedFile),
		out:     make(chan model.RawLine, 512),
		offsets: offsets,
		events:  w.Events,
		watch:   w,
		opts:    opts,
		logger:  opts.Logger,
		retryIn: time.Second,
	}
}

// Lines returns the channel where raw lines are sent. It is closed when
// Start returns.
func (t *Tailer) Lines() <-chan model.RawLine {
	return t.out
}

// Start begins processing watcher events. Blocks until context is cancelled.
func (t *Tailer) Start(ctx context.Context) {
	defer close(t.out)

	for _, p := range t.watch.Paths() {
		t.openFile(p)
		t.readNewLines(ctx, p)
	}

	saveTicker := time.NewTicker(checkpointInterval)
	defer saveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.saveCheckpoint()
			t.closeAll()
			return

		case ev, ok := <-t.events:
			if !ok {
				t.saveCheckpoint()
				t.closeAll()
				return
			}
			t.handleEvent(ctx, ev)

		case <-saveTicker.C:
			t.saveCheckpoint()
		}
	}
}

func (t *Tailer) handleEvent(ctx context.Context, ev watcher.Event) {
	switch {
	case ev.Op.Has(fsnotify.Write):
		t.readNewLines(ctx, ev.Path)

	case ev.Op.Has(fsnotify.Create):
		t.openFile(ev.Path)
		t.readNewLines(ctx, ev.Path)

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		t.closeFile(ev.Path)
		// A rotated file starts over from its beginning.
		t.offsets.SetOffset(ev.Path, 0)
		go t.reconnect(ctx, ev.Path)
	}
}

// openFile opens a file for tailing, resuming from the saved offset.
func (t *Tailer) openFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[path]; exists {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		t.logger.Warn("cannot open file", zap.String("path", path), zap.Error(err))
		return
	}

	var offset int64
	if saved, ok := t.offsets.Offset(path); ok {
		offset = saved
		if info, err := f.Stat(); err == nil && info.Size() < offset {
			t.logger.Info("file truncated, reading from start", zap.String("path", path))
			offset = 0
		}
	} else if !t.opts.FromStart {
		offset, _ = f.Seek(0, io.SeekEnd)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		t.logger.Warn("cannot seek", zap.String("path", path), zap.Error(err))
		f.Close()
		return
	}

	t.files[path] = &trackedFile{
		path:   path,
		file:   f,
		reader: bufio.NewReader(f),
		offset: offset,
	}
}

// readNewLines reads to EOF and emits complete lines. A trailing fragment
// without a newline is held until the rest of it arrives.
func (t *Tailer) readNewLines(ctx context.Context, path string) {
	t.mu.Lock()
	tf, ok := t.files[path]
	t.mu.Unlock()
	if !ok {
		return
	}

	for {
		chunk, err := tf.reader.ReadString('\n')
		if err != nil {
			tf.partial += chunk
			if !errors.Is(err, io.EOF) {
				t.logger.Warn("read error", zap.String("path", path), zap.Error(err))
			}
			break
		}
		line := tf.partial + chunk
		tf.partial = ""
		start := tf.offset

		text := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		select {
		case t.out <- model.RawLine{Text: text, Source: path, Start: start, End: start + int64(len(line))}:
			tf.offset += int64(len(line))
		case <-ctx.Done():
			t.commit(path, tf.offset)
			return
		}
	}
	t.commit(path, tf.offset)
}

func (t *Tailer) commit(path string, offset int64) {
	if !t.opts.ManualCommit {
		t.offsets.SetOffset(path, offset)
	}
}

func (t *Tailer) closeFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tf, ok := t.files[path]; ok {
		tf.file.Close()
		delete(t.files, path)
	}
}

// reconnect polls for a file to reappear after rotation.
func (t *Tailer) reconnect(ctx context.Context, path string) {
	for i := 0; i < reconnectAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.retryIn):
		}
		if _, err := os.Stat(path); err == nil {
			t.logger.Info("reconnected to rotated file", zap.String("path", path))
			_ = t.watch.ReWatch(path)
			t.openFile(path)
			return
		}
	}
	t.logger.Warn("gave up reconnecting", zap.String("path", path), zap.Int("attempts", reconnectAttempts))
}

func (t *Tailer) saveCheckpoint() {
	if err := t.offsets.Save(); err != nil {
		t.logger.Warn("checkpoint save failed", zap.Error(err))
	}
}

func (t *Tailer) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, tf := range t.files {
		tf.file.Close()
		delete(t.files, path)
	}
}
