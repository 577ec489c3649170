package queue

import (
	"errors"
	"sync"
)

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("queue writer closed")

// Queue is the view of the message queue that adapters depend on.
type Queue interface {
	Append(msg Message) error
	Recent(n int) []Message
}

type appendRequest struct {
	msg  Message
	errc chan error
}

// Writer owns all mutations of a Store. A single goroutine performs every
// Append, so HTTP and MCP submissions in the same process cannot interleave
// their load-modify-write cycles. Reads go straight to the store.
type Writer struct {
	store Store
	reqs  chan appendRequest
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewWriter starts the writer goroutine for store.
func NewWriter(store Store) *Writer {
	w := &Writer{
		store: store,
		reqs:  make(chan appendRequest),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Append hands msg to the writer goroutine and waits for the store's result.
func (w *Writer) Append(msg Message) error {
	req := appendRequest{msg: msg, errc: make(chan error, 1)}
	select {
	case w.reqs <- req:
	case <-w.done:
		return ErrWriterClosed
	}
	return <-req.errc
}

// Recent returns the last n messages from the underlying store.
func (w *Writer) Recent(n int) []Message {
	return w.store.Recent(n)
}

// Load returns the whole queue from the underlying store.
func (w *Writer) Load() []Message {
	return w.store.Load()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case req := <-w.reqs:
			req.errc <- w.store.Append(req.msg)
		case <-w.done:
			return
		}
	}
}

// Close stops the writer goroutine. Appends already accepted complete
// first; later ones fail with ErrWriterClosed. The store is not closed.
func (w *Writer) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}
