package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/config"
	"github.com/dshills/paramtree/internal/integration"
	"github.com/dshills/paramtree/internal/logging"
	"github.com/dshills/paramtree/internal/param/coordinator"
	"github.com/dshills/paramtree/internal/param/preset"
	"github.com/dshills/paramtree/internal/param/registry"
)

// app holds the flags and the open session shared by all subcommands.
type app struct {
	configPath string
	presetName string
	verbose    bool

	out    io.Writer
	cfg    config.Config
	logger *zap.Logger

	mgr        *integration.Manager
	closeStore func() error
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "paramctl",
		Short: "Inspect and edit parameter trees",
		Long: `paramctl operates on the unified parameter registry.

Values are read from and written back to a working preset, so edits made by
one invocation are visible to the next. Full parameter paths take the form
<system>.<path>, e.g. lighting.main.intensity.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			lc := cfg.Logging
			if a.verbose {
				lc = logging.Verbose(lc)
			}
			logger, err := logging.New(lc)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file (toml, yaml or json)")
	root.PersistentFlags().StringVarP(&a.presetName, "preset", "p", "current", "Working preset holding the edited state")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		a.getCmd(),
		a.setCmd(),
		a.listCmd(),
		a.systemsCmd(),
		a.validateCmd(),
		a.statusCmd(),
		a.presetCmd(),
	)
	return root, a
}

// session wraps a command so it runs against an open manager whose
// registry holds the working preset.
func (a *app) session(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := a.open(ctx); err != nil {
			return err
		}
		return fn(ctx, args)
	}
}

func (a *app) open(ctx context.Context) error {
	if err := preset.ValidateName(a.presetName); err != nil {
		return fmt.Errorf("--preset: %w", err)
	}

	store, closeStore, err := a.cfg.Presets.OpenStore(ctx, a.logger)
	if err != nil {
		return err
	}
	a.closeStore = closeStore

	cc, err := a.cfg.Coordinator.ToCoordinator()
	if err != nil {
		return err
	}

	// One-shot invocations have nothing to poll or watch.
	ic := a.cfg.Integration.ToIntegration()
	ic.AutoSync = false
	ic.WatchPresets = false

	reg := registry.New(registry.WithStore(store), registry.WithLogger(a.logger))
	mgr, err := integration.NewManager(ic,
		integration.WithLogger(a.logger),
		integration.WithRegistry(reg),
		integration.WithCoordinator(coordinator.New(cc, coordinator.WithLogger(a.logger))),
	)
	if err != nil {
		return err
	}
	a.mgr = mgr

	if err := reg.LoadPreset(ctx, a.presetName); err != nil && !errors.Is(err, preset.ErrNotFound) {
		return fmt.Errorf("load working preset %q: %w", a.presetName, err)
	}
	return mgr.Start(ctx)
}

// persist waits for scheduled work and writes the registry back to the
// working preset.
func (a *app) persist(ctx context.Context) error {
	a.mgr.Flush()
	if err := a.mgr.WaitIdle(ctx); err != nil {
		return err
	}
	return a.mgr.Registry().SavePreset(ctx, a.presetName)
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.mgr != nil {
		errs = append(errs, a.mgr.Close(ctx))
		a.mgr = nil
	}
	if a.closeStore != nil {
		errs = append(errs, a.closeStore())
		a.closeStore = nil
	}
	return errors.Join(errs...)
}
