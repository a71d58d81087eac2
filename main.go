package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"rvsim/config"
	"rvsim/console"
	"rvsim/system"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(runCmd), "")
	subcommands.Register(new(monitorCmd), "")
	subcommands.Register(new(checkCmd), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runCmd is the batch step loop: load an image, step until the limit.
type runCmd struct {
	configPath string
	imagePath  string
	maxSteps   uint64
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run a boot image in batch mode" }
func (*runCmd) Usage() string {
	return "run [-config <file>] [-image <file>] [-steps <n>]\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "capability config file (TOML)")
	f.StringVar(&c.imagePath, "image", "", "boot image loaded at the memory base")
	f.Uint64Var(&c.maxSteps, "steps", 1000000, "stop after this many steps")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return subcommands.ExitUsageError
	}
	sys, err := system.InitializeSystem(cfg, console.NewSimple())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.imagePath != "" {
		img, err := os.ReadFile(c.imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "image: %v\n", err)
			return subcommands.ExitFailure
		}
		if !sys.Mem.LoadImage(cfg.MemoryBase, img) {
			fmt.Fprintf(os.Stderr, "image does not fit in memory\n")
			return subcommands.ExitFailure
		}
	}

	sys.Run(func(s *system.System) {
		s.Fetch()
		s.CSR.PC += 4
		if s.Steps() >= c.maxSteps || !s.Mem.InRange(s.CSR.PC, 4) {
			s.Halt()
		}
	})
	sys.DumpCSRs(os.Stdout)
	return subcommands.ExitSuccess
}

// checkCmd validates a capability config file without running anything.
type checkCmd struct {
	configPath string
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "validate a capability config file" }
func (*checkCmd) Usage() string    { return "check -config <file>\n" }

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "capability config file (TOML)")
}

func (c *checkCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return subcommands.ExitUsageError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println("config ok")
	return subcommands.ExitSuccess
}
