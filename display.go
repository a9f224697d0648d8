package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"xboxbt-driver/internal/battery"
	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/report"
)

// MonitorOptions configures the monitor command.
type MonitorOptions struct {
	Raw   bool // print every report as hex
	Stats int  // collect this many state reports and print byte statistics
}

var hatArrows = [...]string{"", "↑", "↗", "→", "↘", "↓", "↙", "←", "↖"}

// formatState renders one decoded report on a single line.
func formatState(st report.State) string {
	var parts []string

	var pressed []string
	if st.Buttons != 0 {
		pressed = append(pressed, strings.Split(st.Buttons.String(), "+")...)
	}
	if st.Hat != 0 {
		pressed = append(pressed, hatArrows[st.Hat])
	}
	for i := 0; i < 4; i++ {
		if st.Paddles&(1<<i) != 0 {
			pressed = append(pressed, fmt.Sprintf("P%d", i+1))
		}
	}
	if len(pressed) > 0 {
		parts = append(parts, "Pressed: "+strings.Join(pressed, " + "))
	}

	parts = append(parts, fmt.Sprintf("L(%5d, %5d) | R(%5d, %5d) | LT %4d RT %4d",
		st.LX, st.LY, st.RX, st.RY, st.LT, st.RT))

	if st.HasProfile {
		parts = append(parts, fmt.Sprintf("Profile %d", st.Profile))
	}
	if st.HasTriggerScale {
		parts = append(parts, fmt.Sprintf("Scale %s/%s", st.ScaleLeft, st.ScaleRight))
	}
	return strings.Join(parts, " | ")
}

// printStats writes the byte statistics of a capture.
func printStats(w io.Writer, c *ReportCapture) {
	if len(c.Reports) > 0 {
		fmt.Fprintf(w, "First report (%d bytes): %s\n\n", len(c.Reports[0]), hex.EncodeToString(c.Reports[0]))
	}
	fmt.Fprintln(w, "Idx | Changes | Min  | Max  | Range")
	fmt.Fprintln(w, "----|---------|------|------|------")
	for i, st := range c.Stats {
		if !st.Seen {
			continue
		}
		fmt.Fprintf(w, "%3d | %7d | 0x%02x | 0x%02x | %3d\n",
			i, st.Changes, st.Min, st.Max, int(st.Max)-int(st.Min))
	}
}

// RunMonitor prints the controller's decoded input until ctx is done.
func RunMonitor(ctx context.Context, w io.Writer, dev hidDevice, overrides []string, opts MonitorOptions, log *zap.Logger) error {
	hid, err := OpenHID(dev.Identity.Path, log)
	if err != nil {
		return err
	}
	defer hid.Close()
	go hid.ReadLoop(ctx)

	pr := device.Probe(dev.Identity, dev.Descriptor, overrides, log)
	q, batteryID := pr.Quirks, pr.BatteryID
	classifier := report.NewClassifier(q, log)

	fmt.Fprintf(w, "Monitoring %s (%s), quirks %s\n", dev.Identity.Name, dev.Identity.Path, q)
	fmt.Fprintln(w, "Press CTRL+C to quit.")
	fmt.Fprintln(w)

	var capture *ReportCapture
	if opts.Stats > 0 {
		capture = newReportCapture()
		fmt.Fprintf(w, "Collecting %d reports, move sticks and press buttons...\n", opts.Stats)
	}

	var last string
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-hid.Reports():
			if !ok {
				return errors.New("controller disconnected")
			}
			data = r
		}

		if opts.Raw {
			fmt.Fprintf(w, "%s\n", hex.EncodeToString(data))
		}

		switch {
		case data[0] == report.StateReportID:
			if capture != nil {
				capture.Add(data)
				if len(capture.Reports) == opts.Stats {
					fmt.Fprintln(w)
					printStats(w, capture)
					return nil
				}
				continue
			}
			canon, err := classifier.Process(data)
			if err != nil {
				continue
			}
			st, err := report.Decode(canon, q.ShareButton())
			if err != nil {
				continue
			}
			if line := formatState(st); line != last && !opts.Raw {
				fmt.Fprintf(w, "\r\033[K%s", line)
				last = line
			}
		case data[0] == batteryID && len(data) >= 2:
			fmt.Fprintf(w, "\r\033[KBattery: %s\n", battery.Decode(data[1]))
		}
	}
}
