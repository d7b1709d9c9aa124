package journal

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

const (
	defaultQueueSize     = 1024
	defaultFlushInterval = time.Second
)

// Event is one append-only audit entry. The core only ever writes these;
// nothing in the core reads the stream back at runtime.
type Event struct {
	Ts        time.Time `json:"ts"`
	Component string    `json:"component"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// Config controls the journal writer.
type Config struct {
	Path          string
	QueueSize     int
	FlushInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return cfg
}

// Writer appends JSONL events to a single file from a buffered queue.
// Appends never block the caller; overflow drops the event with a log line.
type Writer struct {
	cfg   Config
	clock func() time.Time
	ch    chan Event
	wg    sync.WaitGroup

	started uint32
	closed  uint32
	dropped uint64
}

// NewWriter creates a journal writer and ensures the parent directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Writer{
		cfg:   cfg,
		clock: time.Now,
		ch:    make(chan Event, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return nil
	}
	file, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx, file)
	}()
	return nil
}

// Close stops the writer and flushes buffered events.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
}

// Append enqueues one event. Nil-safe and non-blocking; the audit stream is
// fire-and-forget from every component's perspective.
func (w *Writer) Append(component, kind, detail string) {
	if w == nil || atomic.LoadUint32(&w.closed) != 0 {
		return
	}
	e := Event{Ts: w.clock().UTC(), Component: component, Kind: kind, Detail: detail}
	select {
	case w.ch <- e:
	default:
		if atomic.AddUint64(&w.dropped, 1)%1000 == 1 {
			logs.Warnf("journal: queue full, dropped %d events", atomic.LoadUint64(&w.dropped))
		}
	}
}

// Dropped returns the number of events lost to queue overflow.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return atomic.LoadUint64(&w.dropped)
}

func (w *Writer) run(ctx context.Context, file *os.File) {
	buf := bufio.NewWriter(file)
	defer func() {
		_ = buf.Flush()
		_ = file.Close()
	}()

	flush := time.NewTicker(w.cfg.FlushInterval)
	defer flush.Stop()

	write := func(e Event) {
		line, err := sonic.Marshal(e)
		if err != nil {
			logs.Errorf("journal: marshal event, err: %+v", err)
			return
		}
		if _, err := buf.Write(append(line, '\n')); err != nil {
			logs.Errorf("journal: write event, err: %+v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-w.ch:
					if !ok {
						return
					}
					write(e)
				default:
					return
				}
			}
		case e, ok := <-w.ch:
			if !ok {
				return
			}
			write(e)
		case <-flush.C:
			if err := buf.Flush(); err != nil {
				logs.Errorf("journal: flush, err: %+v", err)
			}
		}
	}
}

// Replay streams every event in the file at path through fn, oldest first.
// The replay tool reads journals this way to reconstruct what the
// coordinator did around an incident. Malformed lines are skipped with a
// log line; only I/O failures surface as errors. A missing file is not an
// error.
func Replay(path string, fn func(Event)) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var e Event
		if err := sonic.Unmarshal(scanner.Bytes(), &e); err != nil {
			logs.Warnf("journal: skipping malformed line, err: %+v", err)
			continue
		}
		fn(e)
	}
	return scanner.Err()
}

