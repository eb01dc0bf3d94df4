package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/ble"
	"github.com/vitaminmoo/ledctl/internal/commands"
	"github.com/vitaminmoo/ledctl/internal/config"
	"github.com/vitaminmoo/ledctl/internal/controller"
	"github.com/vitaminmoo/ledctl/internal/link"
	"github.com/vitaminmoo/ledctl/internal/sim"
	"github.com/vitaminmoo/ledctl/internal/store"
)

// SimulatorName is the advertised name of the --simulate peripheral.
const SimulatorName = "LED_GUITAR_SIM"

// runtime is the state built while a command runs.
type runtime struct {
	Stdout io.Writer
	Stderr io.Writer

	settings   *config.Config
	configPath string
	log        zerolog.Logger
	styles     commands.Styles
	sim        *sim.Peripheral
}

func (r *runtime) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *runtime) stderr() io.Writer {
	if r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}

func (c *CLI) setup() error {
	path := c.ConfigFile
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if c.User != "" {
		cfg.User = c.User
	}
	if c.Address != "" {
		cfg.Device.Address = c.Address
	}
	logger, err := config.SetupLogging(cfg.Log, c.Verbose, c.stderr())
	if err != nil {
		return err
	}
	c.settings, c.configPath, c.log = cfg, path, logger
	c.styles = commands.DefaultStyles()
	return nil
}

// pairingsEnv is what the offline pairing commands need.
type pairingsEnv struct {
	out      io.Writer
	styles   commands.Styles
	pairings *store.Pairings
}

func (c *CLI) withStore(fn func(*pairingsEnv) error) error {
	if err := c.setup(); err != nil {
		return err
	}
	kv, err := c.settings.Store.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer kv.Close()
	return fn(&pairingsEnv{out: c.stdout(), styles: c.styles, pairings: store.NewPairings(kv)})
}

// withDevice connects to the peripheral, or the simulator with --simulate,
// and runs fn against a session.
func (c *CLI) withDevice(fn func(context.Context, *commands.Env) error) error {
	if err := c.setup(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kv, err := c.settings.Store.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer kv.Close()

	var (
		t        link.Transport
		deviceID string
		name     string
	)
	if c.Simulate {
		var stopWatch func()
		c.sim, stopWatch = c.startSimulator()
		defer stopWatch()
		t, deviceID, name = c.sim, "sim:"+SimulatorName, SimulatorName
	} else {
		bt, err := ble.Dial(ctx, ble.Options{
			NamePrefix:  c.settings.Device.NamePrefix,
			Address:     c.settings.Device.Address,
			ScanTimeout: c.settings.Device.ScanTimeout,
			Logger:      c.log,
		})
		if err != nil {
			return err
		}
		defer bt.Close()
		p := bt.Peripheral()
		t, deviceID, name = bt, p.Address, p.Name
	}

	session, err := controller.Open(t, controller.Options{
		DeviceID:   deviceID,
		DeviceName: name,
		Timeout:    c.settings.Device.CommandTimeout,
		LEDCount:   c.settings.Device.LEDCount,
		KV:         kv,
		Logger:     c.log,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	return fn(ctx, &commands.Env{
		Session: session,
		Out:     c.stdout(),
		Styles:  c.styles,
		User:    c.settings.User,
		Log:     c.log,
	})
}

// withOwnedDevice is withDevice for privileged commands. A fresh session on a
// paired device starts unverified, so it verifies as the configured user
// before fn runs.
func (c *CLI) withOwnedDevice(fn func(context.Context, *commands.Env) error) error {
	return c.withDevice(func(ctx context.Context, e *commands.Env) error {
		if st := e.Session.Ownership(); e.User != "" && st.HasOwner && !st.Verified {
			if err := e.Session.Verify(ctx, e.User); err != nil {
				return err
			}
		}
		return fn(ctx, e)
	})
}

// startSimulator builds the --simulate peripheral. Privileged identities
// follow the settings file until the returned stop function is called.
func (c *CLI) startSimulator() (*sim.Peripheral, func()) {
	dev := sim.New(SimulatorName,
		sim.WithLogger(c.log.With().Str("component", "sim").Logger()),
		sim.WithLEDCount(c.settings.Device.LEDCount),
	)
	dev.SetPrivileged(c.settings.PrivilegedUsers...)

	if _, err := os.Stat(c.configPath); err != nil {
		return dev, func() {}
	}
	w, err := config.Watch(c.configPath, c.settings, c.log)
	if err != nil {
		c.log.Debug().Err(err).Msg("settings will not be reloaded")
		return dev, func() {}
	}
	w.OnChange(func(cfg *config.Config) {
		dev.SetPrivileged(cfg.PrivilegedUsers...)
	})
	return dev, func() { _ = w.Close() }
}

// sink picks where synced analytics go: NATS when a URL is given on the
// command line or in the settings, stdout otherwise.
func (c *CLI) sink(url string) (analytics.Sink, func(), error) {
	if url == "" {
		url = c.settings.Analytics.NATSURL
	}
	if url == "" {
		return commands.JSONSink(c.stdout()), func() {}, nil
	}
	sink, nc, err := analytics.ConnectNATS(url, c.settings.Analytics.SubjectPrefix, c.log)
	if err != nil {
		return nil, nil, err
	}
	return sink, nc.Close, nil
}
