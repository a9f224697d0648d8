package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/quirks"
	"xboxbt-driver/internal/status"
)

const usage = `usage: xboxbt [flags] [command] [args]

commands:
  run                 drive every connected controller (default)
  doctor [--usb]      check uinput, permissions and connected controllers
  describe [node...]  print what the driver makes of each controller
  monitor [node]      print decoded input (--raw, --stats N)
  calibrate [node]    measure stick drift against the dead zone
  rumble [node]       play a rumble test pattern

flags:
`

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if cfg.Daemon {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// pickDevice resolves a hidraw node argument, or the first supported
// controller when arg is empty.
func pickDevice(sys sysfs, arg string) (hidDevice, error) {
	if arg == "" {
		devs, err := sys.Scan(quirks.Builtin())
		if err != nil {
			return hidDevice{}, err
		}
		if len(devs) == 0 {
			return hidDevice{}, errors.New("no supported controller connected over Bluetooth")
		}
		return devs[0], nil
	}
	dev, ok, err := sys.Describe(filepath.Base(arg))
	if err != nil {
		return hidDevice{}, err
	}
	if !ok {
		return hidDevice{}, fmt.Errorf("%s is not a Microsoft controller on Bluetooth", arg)
	}
	return dev, nil
}

func runDriver(ctx context.Context, stop context.CancelFunc, cfg *config.Config, log *zap.Logger) error {
	m := NewManager(cfg, defaultSysfs, linuxPlatform, log)
	defer m.Close()

	if cfg.StatusAddr != "" {
		hub := status.NewHub(log)
		b := status.NewBroadcaster(hub, m, log)
		srv := status.NewServer(hub, b, m, cfg.StatusAddr, log)
		m.Observe(b.Observe)

		go hub.Run(ctx)
		go b.Run(ctx)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	hp := &Hotplug{
		Dir:      defaultSysfs.Dev,
		Debounce: rescanDebounce,
		Poll:     rescanPoll,
		Rescan:   func() { m.Scan(ctx) },
		Log:      log,
	}

	if !cfg.Tray {
		m.Scan(ctx)
		log.Info("driver ready, waiting for controllers")
		return hp.Run(ctx)
	}

	// the tray owns the main goroutine until it quits
	tray := NewTray(m, cfg.StatusAddr, stop, log)
	m.Observe(tray.Observe)
	m.Scan(ctx)
	log.Info("driver ready, waiting for controllers")

	errc := make(chan error, 1)
	go func() { errc <- hp.Run(ctx) }()
	go func() {
		<-ctx.Done()
		tray.Quit()
	}()
	tray.Run()
	stop()
	return <-errc
}

func main() {
	fs := pflag.NewFlagSet("xboxbt", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	withUSB := fs.Bool("usb", false, "doctor: also list USB Bluetooth adapters and wired controllers")
	raw := fs.Bool("raw", false, "monitor: print every report as hex")
	stats := fs.Int("stats", 0, "monitor: collect N reports and print byte statistics")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xboxbt:", err)
		os.Exit(2)
	}
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xboxbt:", err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "run", fs.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	node := ""
	if len(args) > 0 {
		node = args[0]
	}

	switch cmd {
	case "run":
		err = runDriver(ctx, stop, cfg, log)
	case "doctor":
		if !RunDoctor(os.Stdout, defaultSysfs, *withUSB) {
			os.Exit(1)
		}
	case "describe":
		err = RunDescribe(os.Stdout, defaultSysfs, args, cfg, log)
	case "monitor", "calibrate", "rumble":
		var dev hidDevice
		if dev, err = pickDevice(defaultSysfs, node); err != nil {
			break
		}
		switch cmd {
		case "monitor":
			err = RunMonitor(ctx, os.Stdout, dev, cfg.Quirks, MonitorOptions{Raw: *raw, Stats: *stats}, log)
		case "calibrate":
			err = RunCalibration(ctx, os.Stdout, os.Stdin, dev, cfg, log)
		case "rumble":
			err = runRumble(ctx, dev, cfg, log)
		}
	default:
		fs.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
