package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalHandler manages OS signal handling for graceful shutdown.
type SignalHandler struct {
	sigChan  chan os.Signal
	doneChan chan struct{}
	signals  []os.Signal
}

// NewSignalHandler listens for the given signals, defaulting to SIGTERM,
// SIGINT, and SIGQUIT.
func NewSignalHandler(signals ...os.Signal) *SignalHandler {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT}
	}

	return &SignalHandler{
		sigChan:  make(chan os.Signal, 1),
		doneChan: make(chan struct{}),
		signals:  signals,
	}
}

// Listen starts listening and returns a channel delivering at most one
// signal before closing.
func (h *SignalHandler) Listen() <-chan os.Signal {
	signal.Notify(h.sigChan, h.signals...)

	outChan := make(chan os.Signal, 1)

	go func() {
		select {
		case sig := <-h.sigChan:
			outChan <- sig
			close(outChan)
		case <-h.doneChan:
			close(outChan)
		}
	}()

	return outChan
}

// Stop stops listening for signals and cleans up.
func (h *SignalHandler) Stop() {
	signal.Stop(h.sigChan)
	close(h.doneChan)
}
