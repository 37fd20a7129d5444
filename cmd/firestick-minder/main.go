// Command firestick-minder watches Fire TV devices over adb and launches an
// idle app (a photo slideshow, say) when a device sits on its home screen.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sweeney/firestick-minder/internal/adb"
	"github.com/sweeney/firestick-minder/internal/config"
	"github.com/sweeney/firestick-minder/internal/logger"
	"github.com/sweeney/firestick-minder/internal/minder"
	"github.com/sweeney/firestick-minder/internal/mqtt"
	"github.com/sweeney/firestick-minder/internal/status"
	"github.com/sweeney/firestick-minder/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath   string
	listPackages string
	timeout      time.Duration
	showVersion  bool
}

// telemetry is what the daemon needs from an MQTT publisher.
type telemetry interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// deps are the process-level collaborators, swapped out in tests.
type deps struct {
	lookPath     func(binary string) (string, error)
	newBridge    func(path string, timeout time.Duration) adb.Bridge
	newPublisher func(cfg config.MQTT, log logger.Logger) (telemetry, error)
	newLogger    func(opts logger.Options) logger.Logger
}

func defaultDeps() deps {
	return deps{
		lookPath: adb.LookPath,
		newBridge: func(path string, timeout time.Duration) adb.Bridge {
			return adb.NewRealBridge(path, adb.WithTimeout(timeout))
		},
		newPublisher: func(cfg config.MQTT, log logger.Logger) (telemetry, error) {
			p, err := mqtt.NewRealPublisher(cfg, log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		newLogger: logger.New,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, config.EnvFromOS(), defaultDeps())
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("firestick-minder", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config (default $"+config.EnvConfigPath+")")
	fs.StringVar(&opts.listPackages, "list-packages", "", "Print the packages installed on the named device and exit")
	fs.DurationVar(&opts.timeout, "timeout", adb.DefaultTimeout, "Timeout for each adb invocation")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: firestick-minder [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is main without the process exit. It returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, env config.Env, d deps) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "firestick-minder: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "firestick-minder %s\n", version)
		return 0
	}

	bootLog := d.newLogger(logger.Options{Level: config.DefaultLogLevel})
	cfg, err := config.Load(opts.configPath, env, bootLog)
	if err != nil {
		bootLog.Errorf("config error: %v", err)
		bootLog.Sync()
		return 1
	}

	log := d.newLogger(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB})
	defer log.Sync()

	adbPath, err := d.lookPath(adb.DefaultBinary)
	if err != nil {
		log.Errorf("%v; install Android platform-tools and make sure adb is on PATH", err)
		return 1
	}
	bridge := d.newBridge(adbPath, opts.timeout)

	if opts.listPackages != "" {
		return listPackages(ctx, cfg, bridge, opts.listPackages, stdout, log)
	}

	logStartup(log, cfg)
	return daemon(ctx, cfg, bridge, d, log)
}

func listPackages(ctx context.Context, cfg *config.Resolved, bridge adb.Bridge, name string, stdout io.Writer, log logger.Logger) int {
	dev, ok := cfg.Device(name)
	if !ok {
		log.Errorf("unknown device %q (configured: %v)", name, cfg.DeviceNames())
		return 1
	}
	if err := bridge.Connect(ctx, dev.Target()); err != nil {
		log.Errorf("connect %s: %v", dev.Target(), err)
		return 1
	}
	pkgs, err := bridge.ListPackages(ctx, dev.Target())
	if err != nil {
		if errors.Is(err, adb.ErrUnauthorized) {
			log.Warn("device unauthorized", logger.String("hint", adb.UnauthorizedHint))
		}
		log.Errorf("list packages on %s: %v", dev.Name, err)
		return 1
	}
	for _, p := range pkgs {
		fmt.Fprintln(stdout, p)
	}
	return 0
}

func daemon(ctx context.Context, cfg *config.Resolved, bridge adb.Bridge, d deps, log logger.Logger) int {
	initial := make([]status.DeviceSnapshot, 0, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		initial = append(initial, status.DeviceSnapshot{Name: dev.Name, Host: dev.Host})
	}
	statusCfg := status.Config{
		PollSeconds:        cfg.PollInterval,
		IdleTimeoutSeconds: cfg.IdleTimeout,
		HTTPAddr:           cfg.HTTPAddr,
		ConfigPath:         cfg.ConfigPath,
	}
	if cfg.MQTT != nil {
		statusCfg.Broker = cfg.MQTT.Broker()
	}
	tracker := status.NewTracker(time.Now(), statusCfg, initial)

	mopts := minder.Options{
		Bridge:  bridge,
		Tracker: tracker,
		Logger:  log.Named("minder"),
	}

	if cfg.MQTT != nil {
		pub, err := d.newPublisher(*cfg.MQTT, log.Named("mqtt"))
		if err != nil {
			log.Warn("mqtt disabled", logger.Error(err))
		} else {
			defer pub.Close()
			mopts.Publisher = pub
			mopts.MQTTStatus = pub
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, log.Named("http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Error("http server error", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := minder.New(cfg, mopts).Run(ctx); err != nil {
		log.Error("poll loop failed", logger.Error(err))
		return 1
	}
	log.Info("firestick-minder exiting")
	return 0
}

func logStartup(log logger.Logger, cfg *config.Resolved) {
	log.Infof("firestick-minder %s starting up", version)
	if cfg.ConfigPath != "" {
		log.Infof("config source: YAML file %s", cfg.ConfigPath)
	} else {
		log.Info("config source: environment variables (env-only mode)")
	}
	log.Info(cfg.Summary())

	log.Info("devices",
		logger.Strings("names", cfg.DeviceNames()),
		logger.String("source", cfg.Sources[config.FieldDevices]))
	for _, dev := range cfg.Devices {
		log.Debug("device",
			logger.String("name", dev.Name),
			logger.String("target", dev.Target()),
			logger.String("idle_component", dev.IdleComponent),
			logger.Strings("home_packages", dev.HomePackageList()))
	}

	log.Infof("polling every %d seconds", cfg.PollInterval)
	if cfg.IdleApp != "" {
		log.Infof("idle app: %s", cfg.IdleApp)
	}
	if cfg.IdleTimeout != nil {
		log.Infof("idle timer enabled at %d seconds", *cfg.IdleTimeout)
	} else {
		log.Info("idle timer disabled; a device is switched as soon as it is idle on the home screen")
	}
	if cfg.MQTT != nil {
		log.Infof("mqtt enabled: %s", cfg.MQTT)
	} else {
		log.Info("mqtt disabled")
	}
	if cfg.HTTPAddr != "" {
		log.Infof("status server on %s", cfg.HTTPAddr)
	}
}
