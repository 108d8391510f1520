package verbose

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"
)

// VerboseWriter prints the events of its own bus to w, one formatted line
// per event at or below its level.
type VerboseWriter struct {
	bus       *DefaultVerboseEventBus
	formatter VerboseFormatter
	out       io.Writer
	level     VerboseLevel

	once    sync.Once
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewVerboseWriter creates a writer with its own bus.
func NewVerboseWriter(w io.Writer, level VerboseLevel, jsonOutput, noColor bool) *VerboseWriter {
	var formatter VerboseFormatter = NewTextVerboseFormatter(noColor)
	if jsonOutput {
		formatter = NewJSONVerboseFormatter()
	}
	return &VerboseWriter{
		bus:       NewDefaultVerboseEventBus(),
		formatter: formatter,
		out:       w,
		level:     level,
	}
}

// Start subscribes to the bus and begins printing. Only the first call
// has an effect. The printer runs until Stop; events emitted after a
// cancelled attack (the cancellation summary) still get printed.
func (vw *VerboseWriter) Start(ctx context.Context) {
	vw.once.Do(func() {
		events, _ := vw.bus.Subscribe(ctx)
		vw.wg.Add(1)
		go vw.print(events)
	})
}

func (vw *VerboseWriter) print(events <-chan VerboseEvent) {
	defer vw.wg.Done()

	broken := false
	// Closing the bus closes events; whatever is still buffered is read first.
	for event := range events {
		if broken || event.Level > vw.level {
			continue
		}
		if _, err := io.WriteString(vw.out, vw.formatter.Format(event)); err != nil && isEPIPE(err) {
			// `crucible attack --watch ... 2>&1 | head`
			broken = true
		}
	}
}

// Stop closes the bus and waits until the buffered events are printed.
// Safe on a nil writer and on repeated calls.
func (vw *VerboseWriter) Stop() {
	if vw == nil {
		return
	}
	vw.stopped.Do(func() {
		_ = vw.bus.Close()
		vw.wg.Wait()
	})
}

// Bus is where the orchestrator emits.
func (vw *VerboseWriter) Bus() VerboseEventBus {
	return vw.bus
}

func isEPIPE(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
