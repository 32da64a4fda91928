package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner animates a message while a long step runs.
type Spinner struct {
	frames  []string
	current int
	message string
	writer  io.Writer
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	once    sync.Once
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		writer:  w,
		stopCh:  make(chan struct{}),
	}
}

// Start begins animating. All methods are no-ops on a nil Spinner.
func (s *Spinner) Start() {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.writer, "\r%s %s", s.frames[s.current], s.message)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.mu.Lock()
		fmt.Fprint(s.writer, "\r\033[K")
		s.mu.Unlock()
	})
}

// UpdateMessage replaces the message shown next to the spinner.
func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}
