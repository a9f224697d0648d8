package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/report"
)

const (
	stickCentre = 32768
	// a stick counts as reaching an end within this distance
	reachMargin = 1024
)

// axisSurvey tracks the values of one stick axis.
type axisSurvey struct {
	Min, Max uint16
	sum      uint64
	n        int
}

func (a *axisSurvey) add(v uint16) {
	if a.n == 0 || v < a.Min {
		a.Min = v
	}
	if a.n == 0 || v > a.Max {
		a.Max = v
	}
	a.sum += uint64(v)
	a.n++
}

func (a axisSurvey) Mean() uint16 {
	if a.n == 0 {
		return stickCentre
	}
	return uint16(a.sum / uint64(a.n))
}

// Drift is the largest distance from the centre seen.
func (a axisSurvey) Drift() int32 {
	if a.n == 0 {
		return 0
	}
	return max(int32(a.Max)-stickCentre, stickCentre-int32(a.Min), 0)
}

// Reaches reports whether both ends of the axis were reached.
func (a axisSurvey) Reaches() bool {
	return a.n > 0 && a.Min <= reachMargin && a.Max >= 65535-reachMargin
}

// StickSurvey collects the four stick axes over a number of reports.
type StickSurvey struct {
	LX, LY, RX, RY axisSurvey
	Samples        int
}

func (s *StickSurvey) Add(st report.State) {
	s.LX.add(st.LX)
	s.LY.add(st.LY)
	s.RX.add(st.RX)
	s.RY.add(st.RY)
	s.Samples++
}

func (s *StickSurvey) axes() []struct {
	name string
	a    *axisSurvey
} {
	return []struct {
		name string
		a    *axisSurvey
	}{{"LX", &s.LX}, {"LY", &s.LY}, {"RX", &s.RX}, {"RY", &s.RY}}
}

// Drift is the largest drift of any axis.
func (s StickSurvey) Drift() int32 {
	return max(s.LX.Drift(), s.LY.Drift(), s.RX.Drift(), s.RY.Drift())
}

// Verdict is the result of a calibration run.
type Verdict struct {
	Drift            int32
	Flat             int32
	FullRange        bool
	DisableDeadzones bool
	Advice           string
}

// judge compares the resting and moving surveys to the dead zone the
// gamepad announces with the given options.
func judge(rest, moving StickSurvey, opts axis.Options) Verdict {
	opts.DisableDeadzones = false
	flat := axis.NewNormalizer(opts).StickRange().Flat

	v := Verdict{
		Drift:     rest.Drift(),
		Flat:      flat,
		FullRange: moving.LX.Reaches() && moving.LY.Reaches() && moving.RX.Reaches() && moving.RY.Reaches(),
	}
	switch {
	case v.Drift > flat:
		v.Advice = "resting sticks drift beyond the dead zone; expect slow movement in games without their own dead zone"
	case v.Drift*4 < flat:
		v.DisableDeadzones = true
		v.Advice = "sticks rest well inside the dead zone; disable_deadzones is safe"
	default:
		v.Advice = "the default dead zone fits these sticks"
	}
	return v
}

func printSurvey(w io.Writer, title string, s *StickSurvey) {
	fmt.Fprintf(w, "%s (%d samples):\n", title, s.Samples)
	for _, ax := range s.axes() {
		fmt.Fprintf(w, "  %s: mean=%5d min=%5d max=%5d drift=%5d\n",
			ax.name, ax.a.Mean(), ax.a.Min, ax.a.Max, ax.a.Drift())
	}
}

// stateReader yields decoded state reports of one controller.
type stateReader struct {
	hid        *HIDTransport
	classifier *report.Classifier
	share      bool
}

func (r *stateReader) next(ctx context.Context) (report.State, error) {
	for {
		select {
		case <-ctx.Done():
			return report.State{}, ctx.Err()
		case data, ok := <-r.hid.Reports():
			if !ok {
				return report.State{}, errors.New("controller disconnected")
			}
			canon, err := r.classifier.Process(data)
			if err != nil {
				if errors.Is(err, report.ErrDuplicate) {
					// a resting controller repeats itself
					st, derr := report.Decode(data, r.share)
					if derr == nil {
						return st, nil
					}
				}
				continue
			}
			st, err := report.Decode(canon, r.share)
			if err != nil {
				continue
			}
			return st, nil
		}
	}
}

func (r *stateReader) survey(ctx context.Context, d time.Duration) (StickSurvey, error) {
	var s StickSurvey
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	for {
		st, err := r.next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.Add(st)
	}
}

// RunCalibration measures stick drift and range and prints whether the
// configured dead zones suit the controller.
func RunCalibration(ctx context.Context, w io.Writer, in io.Reader, dev hidDevice, cfg *config.Config, log *zap.Logger) error {
	hid, err := OpenHID(dev.Identity.Path, log)
	if err != nil {
		return err
	}
	defer hid.Close()
	go hid.ReadLoop(ctx)

	pr := device.Probe(dev.Identity, dev.Descriptor, cfg.Quirks, log)
	r := &stateReader{hid: hid, classifier: report.NewClassifier(pr.Quirks, log), share: pr.Quirks.ShareButton()}
	stdin := bufio.NewReader(in)

	fmt.Fprintln(w, "Stick calibration check")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Step 1: let both sticks rest, don't touch them.")
	fmt.Fprint(w, "Press ENTER when ready...")
	stdin.ReadString('\n')

	rest, err := r.survey(ctx, 2*time.Second)
	if err != nil {
		return err
	}
	printSurvey(w, "Resting", &rest)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Step 2: move BOTH sticks in full circles, all the way to the edges.")
	fmt.Fprint(w, "Press ENTER to start, then keep moving for 5 seconds...")
	stdin.ReadString('\n')

	moving, err := r.survey(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	printSurvey(w, "Moving", &moving)
	fmt.Fprintln(w)

	v := judge(rest, moving, cfg.AxisOptions())
	fmt.Fprintf(w, "Drift %d, dead zone %d, full range %v\n", v.Drift, v.Flat, v.FullRange)
	fmt.Fprintln(w, v.Advice)
	if !v.FullRange {
		fmt.Fprintln(w, "at least one axis did not reach both ends")
	}
	return nil
}
