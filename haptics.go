package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/quirks"
	"xboxbt-driver/internal/rumble"
)

// RumbleStep is one frame of a rumble test pattern.
type RumbleStep struct {
	Name     string
	Request  rumble.Request
	Triggers [2]uint16 // trigger positions while the step plays
	Hold     time.Duration
}

// DefaultRumblePattern exercises every motor once.
var DefaultRumblePattern = []RumbleStep{
	{Name: "strong", Request: rumble.Request{Strong: 0xFFFF}, Hold: 400 * time.Millisecond},
	{Name: "weak", Request: rumble.Request{Weak: 0xFFFF}, Hold: 400 * time.Millisecond},
	{Name: "left trigger", Request: rumble.Request{Strong: 0x8000, Direction: 0x4000}, Triggers: [2]uint16{1023, 0}, Hold: 400 * time.Millisecond},
	{Name: "right trigger", Request: rumble.Request{Strong: 0x8000, Direction: 0xC000}, Triggers: [2]uint16{0, 1023}, Hold: 400 * time.Millisecond},
	{Name: "all", Request: rumble.Request{Strong: 0xFFFF, Weak: 0xFFFF}, Triggers: [2]uint16{1023, 1023}, Hold: 400 * time.Millisecond},
}

// PlayRumble sends pattern to the controller through the same mapper and
// throttled scheduler the driver uses, then stops all motors.
func PlayRumble(ctx context.Context, out io.Writer, q quirks.Set, cfg *config.Config, pattern []RumbleStep, log *zap.Logger) (rumble.Stats, error) {
	attMain, attTrig := cfg.Attenuation()
	mapper := rumble.NewMapper(cfg.RumbleMode(), attMain, attTrig)
	sched := rumble.NewScheduler(out, q, log)
	defer sched.Close()

	for i, step := range pattern {
		mapper.SetTriggers(step.Triggers[0], step.Triggers[1])
		m := mapper.Map(step.Request)
		log.Info("rumble step",
			zap.Int("step", i+1),
			zap.String("name", step.Name),
			zap.Stringer("motors", m))
		sched.Submit(m)

		select {
		case <-ctx.Done():
			sched.Submit(rumble.Motors{})
			sched.Flush()
			return sched.Stats(), ctx.Err()
		case <-time.After(step.Hold):
		}
	}

	sched.Submit(rumble.Motors{})
	sched.Flush()
	return sched.Stats(), nil
}

func runRumble(ctx context.Context, dev hidDevice, cfg *config.Config, log *zap.Logger) error {
	hid, err := OpenHID(dev.Identity.Path, log)
	if err != nil {
		return err
	}
	defer hid.Close()

	pr := device.Probe(dev.Identity, dev.Descriptor, cfg.Quirks, log)
	stats, err := PlayRumble(ctx, hid, pr.Quirks, cfg, DefaultRumblePattern, log)
	log.Info("rumble test done",
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("skipped", stats.Skipped),
		zap.Uint64("failed", stats.Failed))
	return err
}
