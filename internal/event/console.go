package event

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleSink renders events as the console notification lines users see.
// The line formats are preserved from the original alarm program, with
// "Worker" standing in for its display threads.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w (normally os.Stdout).
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Emit writes the formatted line for e. Events from concurrent workers are
// serialised by the sink's own mutex so lines never interleave mid-write.
func (c *ConsoleSink) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case TypeInserted:
		fmt.Fprintf(c.w, "Alarm(%d) Inserted by Gateway(%s) Into Alarm List at %d: %d %s\n",
			e.AlarmID, e.Actor, e.At, e.Seconds, e.Message)
	case TypeChanged:
		fmt.Fprintf(c.w, "Alarm(%d) Changed at %d: %d %s\n",
			e.AlarmID, e.At, e.Seconds, e.Message)
	case TypeWorkerCreated:
		fmt.Fprintf(c.w, "New Worker(%d) Created For Alarm(%d) at %d\n",
			e.WorkerID, e.AlarmID, e.At)
	case TypeRender:
		fmt.Fprintf(c.w, "Alarm(%d): %s\n", e.AlarmID, e.Message)
	case TypeRenderChanged:
		fmt.Fprintf(c.w, "Worker(%d) Has Started to Print Changed Message at %d: %s\n",
			e.WorkerID, e.At, e.Message)
	case TypeExpired:
		fmt.Fprintf(c.w, "Alarm(%d): Alarm Expired at %d: Alarm Removed From Alarm List\n",
			e.AlarmID, e.At)
	case TypeWorkerStopped:
		fmt.Fprintf(c.w, "Worker(%d) Stopped Printing Alarm(%d) Message at %d\n",
			e.WorkerID, e.AlarmID, e.At)
	}
}
