package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/jroimartin/gocui"

	"rvsim/console"
	"rvsim/system"
)

// monitorCmd runs the hart under the gocui front panel: a console view on
// top, the privileged CSR snapshot in the middle, status lines below.
type monitorCmd struct {
	configPath string
	imagePath  string
}

func (*monitorCmd) Name() string     { return "monitor" }
func (*monitorCmd) Synopsis() string { return "run with the interactive front panel" }
func (*monitorCmd) Usage() string    { return "monitor [-config <file>] [-image <file>]\n" }

func (c *monitorCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "capability config file (TOML)")
	f.StringVar(&c.imagePath, "image", "", "boot image loaded at the memory base")
}

func (c *monitorCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gui: %v\n", err)
		return subcommands.ExitFailure
	}
	defer g.Close()

	g.SetManagerFunc(layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		fmt.Fprintf(os.Stderr, "keybinding: %v\n", err)
		return subcommands.ExitFailure
	}

	// start the hart once the views exist
	g.Update(func(g *gocui.Gui) error { return c.start(g) })

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		fmt.Fprintf(os.Stderr, "gui: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *monitorCmd) start(g *gocui.Gui) error {
	statusView, err := g.View("status")
	if err != nil {
		return err
	}
	statusView.Clear()

	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(statusView, "Starting rvsim hart..\n")
	sys, err := system.InitializeSystem(cfg, console.NewGui(g))
	if err != nil {
		return err
	}
	if c.imagePath != "" {
		img, err := os.ReadFile(c.imagePath)
		if err != nil {
			return err
		}
		if !sys.Mem.LoadImage(cfg.MemoryBase, img) {
			return fmt.Errorf("image does not fit in memory")
		}
	}

	updateCSRs(sys, g)

	go sys.Run(func(s *system.System) {
		s.Fetch()
		s.CSR.PC += 4
		if !s.Mem.InRange(s.CSR.PC, 4) {
			s.Halt()
		}
	})
	return nil
}

// updateCSRs refreshes the CSR view once a second. Has to go through
// g.Execute - gocui only allows updating a view from its own loop.
func updateCSRs(sys *system.System, g *gocui.Gui) {
	ticker := time.NewTicker(time.Second * 1)

	go func() {
		for range ticker.C {
			g.Update(func(g *gocui.Gui) error {
				v, err := g.View("csrs")
				if err != nil {
					return err
				}
				v.Clear()
				sys.DumpCSRs(v)
				return nil
			})
		}
	}()
}

// gocui layout
func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// up -> console
	if v, err := g.SetView("console", 0, 0, maxX-1, maxY-18); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Console"
	}

	// middle -> privileged state
	if v, err := g.SetView("csrs", 0, maxY-17, maxX-1, maxY-10); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "CSRs"
	}
	// down -> status
	if v, err := g.SetView("status", 0, maxY-9, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
	}
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}
