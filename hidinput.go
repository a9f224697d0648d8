package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const maxReportSize = 64

// HIDTransport is an open hidraw node. Reports are read by one goroutine and
// delivered on a channel; Write sends output reports.
type HIDTransport struct {
	file    *os.File
	path    string
	reports chan []byte
	log     *zap.Logger

	wmu       sync.Mutex
	closeOnce sync.Once
}

// OpenHID opens a hidraw node for reading and writing.
func OpenHID(path string, log *zap.Logger) (*HIDTransport, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open hidraw: %w (try running as root or add udev rule)", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HIDTransport{
		file:    f,
		path:    path,
		reports: make(chan []byte, 16),
		log:     log,
	}, nil
}

// Reports returns the channel of input reports. It is closed when reading
// stops.
func (h *HIDTransport) Reports() <-chan []byte { return h.reports }

// ReadLoop reads reports until ctx is done or the node goes away.
func (h *HIDTransport) ReadLoop(ctx context.Context) {
	defer close(h.reports)
	buf := make([]byte, maxReportSize)
	for {
		n, err := h.file.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				h.log.Info("hidraw read stopped", zap.String("path", h.path), zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}
		report := make([]byte, n)
		copy(report, buf[:n])
		select {
		case h.reports <- report:
		case <-ctx.Done():
			return
		}
	}
}

// Write sends one output report.
func (h *HIDTransport) Write(p []byte) (int, error) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.file.Write(p)
	if err == nil && n != len(p) {
		return n, fmt.Errorf("short write: %d/%d bytes", n, len(p))
	}
	return n, err
}

// Close closes the node; ReadLoop returns soon after.
func (h *HIDTransport) Close() error {
	var err error
	h.closeOnce.Do(func() { err = h.file.Close() })
	return err
}

// grabEvdev takes exclusive access of the kernel's own input device so that
// applications only see the virtual one. The returned file releases the
// grab when closed.
func grabEvdev(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := ioctl(f, eviocGrab, 1); err != nil {
		f.Close()
		return nil, fmt.Errorf("EVIOCGRAB: %w", err)
	}
	return f, nil
}

// ReportStats tracks the values seen at one byte position.
type ReportStats struct {
	Seen    bool
	Min     byte
	Max     byte
	Changes int
}

// ReportCapture collects raw reports of one report id for inspection.
type ReportCapture struct {
	Reports [][]byte
	Stats   []ReportStats
}

func newReportCapture() *ReportCapture {
	return &ReportCapture{Stats: make([]ReportStats, maxReportSize)}
}

// Add records one report. Changes count differences to the first report.
func (c *ReportCapture) Add(report []byte) {
	c.Reports = append(c.Reports, report)
	first := c.Reports[0]
	for j := 0; j < len(report) && j < len(c.Stats); j++ {
		st := &c.Stats[j]
		if !st.Seen {
			st.Min, st.Max, st.Seen = report[j], report[j], true
		} else {
			st.Min = min(st.Min, report[j])
			st.Max = max(st.Max, report[j])
		}
		if len(c.Reports) > 1 && (j >= len(first) || report[j] != first[j]) {
			st.Changes++
		}
	}
}
