// Command bodyscale talks to a Trisa Body Analyze scale.
//
// Usage:
//
//	bodyscale [-config path] run       connect and record weigh-ins until Ctrl+C
//	bodyscale [-config path] scan      list nearby scales
//	bodyscale [-config path] history   print recorded weigh-ins
//	bodyscale [-config path] init      write a default config file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/bodyscale/internal/ble"
	"github.com/chaz8081/bodyscale/internal/config"
	"github.com/chaz8081/bodyscale/internal/credstore"
	"github.com/chaz8081/bodyscale/internal/journal"
	"github.com/chaz8081/bodyscale/internal/publish"
	"github.com/chaz8081/bodyscale/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/bodyscale/config.yaml)")
	flag.Usage = usage
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	if cmd == "init" {
		runInit(*configPath)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	switch cmd {
	case "run":
		if err := run(cfg); err != nil {
			log.Fatalf("run: %v", err)
		}
	case "scan":
		if err := scan(cfg); err != nil {
			log.Fatalf("scan: %v", err)
		}
	case "history":
		if err := history(cfg, args); err != nil {
			log.Fatalf("history: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path] run|scan|history|init\n\n", os.Args[0])
	flag.PrintDefaults()
}

func runInit(configPath string) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	written, err := config.WriteDefault(path)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if written == "" {
		log.Printf("Config already exists at %s, leaving it alone", path)
		return
	}
	log.Printf("Wrote default config to %s", written)
}

func run(cfg *config.Config) error {
	if cfg.DeviceAddress == "" {
		return errors.New("device_address is not set; run 'bodyscale scan' to find your scale")
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporterOpts := report.Options{Logger: slog.Default()}

	profile, ok, err := cfg.Profile.BodyProfile()
	if err != nil {
		return err
	}
	if ok {
		reporterOpts.Profile = &profile
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		reporterOpts.Journal = j
	}

	if cfg.Redis.Addr != "" {
		pub, err := publish.NewRedis(ctx, publish.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		reporterOpts.Publisher = pub
	}

	broadcastID, err := cfg.ParseBroadcastID()
	if err != nil {
		return err
	}
	opts := ble.DefaultClientOptions()
	opts.BroadcastID = broadcastID
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.Logger = slog.Default()

	client, err := ble.NewClient(
		ble.NewHostAdapter(cfg.Adapter),
		cfg.DeviceAddress,
		credstore.New(cfg.PasswordFile),
		report.New(reporterOpts),
		opts,
	)
	if err != nil {
		return err
	}

	log.Println("Step on the scale. Ctrl+C to quit.")
	err = client.Run(ctx)
	switch {
	case errors.Is(err, ble.ErrDisconnected):
		log.Println("Scale disconnected")
		return nil
	case err != nil:
		return err
	}
	log.Println("Goodbye!")
	return nil
}

func scan(cfg *config.Config) error {
	log.Printf("Scanning for scales (%s)...", cfg.ScanTimeout)
	devices, err := ble.ScanForScales(ble.NewHostAdapter(cfg.Adapter), cfg.ScanTimeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		log.Println("No scales found. Wake the scale by stepping on it and try again.")
		return nil
	}
	fmt.Printf("%-20s %-40s %s\n", "NAME", "ADDRESS", "RSSI")
	for _, d := range devices {
		fmt.Printf("%-20s %-40s %d\n", d.Name, d.Address, d.RSSI)
	}
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== bodyscale ===")
	fmt.Printf("  Scale:    %s (adapter %s)\n", cfg.DeviceAddress, cfg.Adapter)
	fmt.Printf("  Password: %s\n", cfg.PasswordFile)
	fmt.Printf("  Journal:  %s\n", orNone(cfg.Journal.Path))
	if cfg.Redis.Addr != "" {
		fmt.Printf("  Redis:    %s (key %s)\n", cfg.Redis.Addr, cfg.Redis.Key)
	} else {
		fmt.Println("  Redis:    off")
	}
	if cfg.Profile.Age > 0 {
		fmt.Printf("  Profile:  %s, %d years, %.2f m (%s)\n", cfg.Profile.Sex, cfg.Profile.Age, cfg.Profile.HeightM, cfg.Profile.Formula)
	}
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=================")
}

func orNone(s string) string {
	if s == "" {
		return "off"
	}
	return s
}
