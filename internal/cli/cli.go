// Package cli defines the ledctl command tree.
package cli

import (
	"context"

	"github.com/vitaminmoo/ledctl/internal/commands"
	"github.com/vitaminmoo/ledctl/internal/configrepo"
)

// CLI is the root command structure for ledctl.
type CLI struct {
	Verbose    bool   `short:"v" help:"Enable verbose debug output"`
	ConfigFile string `name:"config" short:"c" type:"path" placeholder:"FILE" help:"Settings file (TOML, YAML or JSON)"`
	Simulate   bool   `help:"Talk to a simulated peripheral instead of Bluetooth"`
	Address    string `help:"Connect to this peripheral address instead of scanning by name"`
	User       string `short:"u" help:"User ID for ownership commands"`

	Status    StatusCmd    `cmd:"" help:"Show link, config mode and ownership state"`
	Claim     ClaimCmd     `cmd:"" help:"Claim an unowned device"`
	Verify    VerifyCmd    `cmd:"" help:"Prove ownership for this session"`
	Unclaim   UnclaimCmd   `cmd:"" help:"Release ownership"`
	Config    ConfigCmd    `cmd:"" help:"Lighting configuration"`
	Analytics AnalyticsCmd `cmd:"" help:"Usage telemetry"`
	Pairings  PairingsCmd  `cmd:"" help:"Locally remembered devices"`
	Demo      DemoCmd      `cmd:"" help:"Run the full workflow against a simulated device"`

	runtime `kong:"-"`
}

// --- Device Commands ---

type StatusCmd struct{}

func (c *StatusCmd) Run(globals *CLI) error {
	return globals.withDevice(func(ctx context.Context, e *commands.Env) error {
		return commands.Status(ctx, e)
	})
}

type ClaimCmd struct{}

func (c *ClaimCmd) Run(globals *CLI) error {
	return globals.withDevice(commands.Claim)
}

type VerifyCmd struct{}

func (c *VerifyCmd) Run(globals *CLI) error {
	return globals.withDevice(commands.Verify)
}

type UnclaimCmd struct{}

func (c *UnclaimCmd) Run(globals *CLI) error {
	return globals.withDevice(commands.Unclaim)
}

// --- Lighting Commands ---

type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Show the committed configuration"`
	Set  ConfigSetCmd  `cmd:"" help:"Change, commit and save settings"`
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(globals *CLI) error {
	return globals.withDevice(func(_ context.Context, e *commands.Env) error {
		return commands.ConfigShow(e, globals.settings.Device.LEDCount)
	})
}

type ConfigSetCmd struct {
	Brightness *uint8 `help:"Brightness percent (0-100)"`
	Speed      *uint8 `help:"Effect speed (0-100)"`
	Effect     *uint8 `help:"Effect type (0-5)"`
	Hue        *uint8 `help:"Color hue (0-255)"`
	Saturation *uint8 `help:"Color saturation (0-255)"`
	Value      *uint8 `help:"Color value (0-255)"`
	Power      string `enum:"on,off,keep" default:"keep" help:"Turn the strip on or off"`
}

// partial builds the update, filling unset color channels from current.
func (c *ConfigSetCmd) partial(current configrepo.Snapshot) configrepo.Partial {
	p := configrepo.Partial{Brightness: c.Brightness, Speed: c.Speed, Effect: c.Effect}
	if c.Hue != nil || c.Saturation != nil || c.Value != nil {
		col := current.Color
		if c.Hue != nil {
			col.H = *c.Hue
		}
		if c.Saturation != nil {
			col.S = *c.Saturation
		}
		if c.Value != nil {
			col.V = *c.Value
		}
		p.Color = &col
	}
	if c.Power != "keep" {
		on := c.Power == "on"
		p.PowerOn = &on
	}
	return p
}

func (c *ConfigSetCmd) Run(globals *CLI) error {
	return globals.withOwnedDevice(func(ctx context.Context, e *commands.Env) error {
		return commands.ConfigSet(ctx, e, c.partial(e.Session.Config()), globals.settings.Device.LEDCount)
	})
}

// --- Analytics Commands ---

type AnalyticsCmd struct {
	Sync AnalyticsSyncCmd `cmd:"" help:"Transfer telemetry off the device"`
}

type AnalyticsSyncCmd struct {
	NATS string `name:"nats" placeholder:"URL" help:"Publish batches to this NATS server instead of stdout"`
}

func (c *AnalyticsSyncCmd) Run(globals *CLI) error {
	return globals.withOwnedDevice(func(ctx context.Context, e *commands.Env) error {
		sink, closeSink, err := globals.sink(c.NATS)
		if err != nil {
			return err
		}
		defer closeSink()
		return commands.AnalyticsSync(ctx, e, sink)
	})
}

// --- Pairing Commands ---

type PairingsCmd struct {
	List   PairingsListCmd   `cmd:"" help:"List paired devices"`
	Forget PairingsForgetCmd `cmd:"" help:"Forget a paired device locally"`
}

type PairingsListCmd struct{}

func (c *PairingsListCmd) Run(globals *CLI) error {
	return globals.withStore(func(p *pairingsEnv) error {
		return commands.PairingsList(p.out, p.styles, p.pairings)
	})
}

type PairingsForgetCmd struct {
	Device string `arg:"" help:"Device ID to forget"`
}

func (c *PairingsForgetCmd) Run(globals *CLI) error {
	return globals.withStore(func(p *pairingsEnv) error {
		return commands.PairingsForget(p.out, p.styles, p.pairings, c.Device)
	})
}

// --- Demo ---

type DemoCmd struct {
	NATS string `name:"nats" placeholder:"URL" help:"Publish demo analytics to this NATS server"`
}

func (c *DemoCmd) Run(globals *CLI) error {
	globals.Simulate = true
	return globals.withDevice(func(ctx context.Context, e *commands.Env) error {
		sink, closeSink, err := globals.sink(c.NATS)
		if err != nil {
			return err
		}
		defer closeSink()
		if e.User == "" {
			e.User = "demo"
		}
		return commands.Demo(ctx, e, globals.sim, sink, globals.settings.Device.LEDCount)
	})
}
