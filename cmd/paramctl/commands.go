package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/paramtree/internal/param/registry"
	"github.com/dshills/paramtree/internal/param/value"
)

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <system.path>...",
		Short: "Print parameter values",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.session(func(ctx context.Context, args []string) error {
			for _, full := range args {
				if !a.mgr.HasParameter(full) {
					return fmt.Errorf("unknown parameter %q", full)
				}
				fmt.Fprintf(a.out, "%s = %s\n", full, format(a.mgr.Parameter(full)))
			}
			return nil
		}),
	}
}

func (a *app) setCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "set <system.path> <value>",
		Short: "Set a parameter value",
		Long: `Set a parameter value. The text is parsed according to the
parameter's current kind. Vector parameters accept "x,y,z" or a "#rrggbb"
color. Use --kind to create a parameter that does not exist yet.`,
		Args: cobra.ExactArgs(2),
		RunE: a.session(func(ctx context.Context, args []string) error {
			full, text := args[0], args[1]
			st, path, err := registry.ParseFullPath(full)
			if err != nil {
				return err
			}

			t := a.mgr.Registry().System(st)
			if t == nil {
				return fmt.Errorf("system %s is not registered", st)
			}

			if !t.HasParameter(path) {
				if kind == "" {
					return fmt.Errorf("unknown parameter %q (use --kind to create it)", full)
				}
				k, err := value.ParseKind(kind)
				if err != nil {
					return err
				}
				v, err := value.Parse(k, text)
				if err != nil {
					return err
				}
				if _, err := t.CreateParameter(path, v); err != nil {
					return err
				}
				return a.persist(ctx)
			}

			v, err := value.Parse(a.mgr.Parameter(full).Kind(), text)
			if err != nil {
				return err
			}
			if err := a.mgr.SetParameter(full, v); err != nil {
				return err
			}
			return a.persist(ctx)
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Create the parameter with this kind (bool, int, float, text, vector, opaque)")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [system]...",
		Short: "List parameters and their values",
		RunE: a.session(func(ctx context.Context, args []string) error {
			systems, err := a.selectSystems(args)
			if err != nil {
				return err
			}
			for _, st := range systems {
				values := a.mgr.Registry().All(st)
				paths := make([]string, 0, len(values))
				for p := range values {
					paths = append(paths, p)
				}
				sort.Strings(paths)
				for _, p := range paths {
					fmt.Fprintf(a.out, "%s = %s\n", registry.BuildFullPath(st, p), format(values[p]))
				}
			}
			return nil
		}),
	}
}

func (a *app) systemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List registered systems",
		Args:  cobra.NoArgs,
		RunE: a.session(func(ctx context.Context, args []string) error {
			reg := a.mgr.Registry()
			for _, st := range reg.Systems() {
				deps := reg.SystemDependencies(st)
				line := fmt.Sprintf("%-12s %3d parameters", st, len(reg.All(st)))
				if len(deps) > 0 {
					names := make([]string, len(deps))
					for i, d := range deps {
						names[i] = d.String()
					}
					line += "  depends on " + strings.Join(names, ", ")
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		}),
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every parameter against its range",
		Args:  cobra.NoArgs,
		RunE: a.session(func(ctx context.Context, args []string) error {
			if a.mgr.ValidateAll() {
				fmt.Fprintln(a.out, "all parameters valid")
				return nil
			}
			problems := a.mgr.ValidationErrors()
			for _, p := range problems {
				fmt.Fprintln(a.out, p)
			}
			return fmt.Errorf("%d invalid parameters", len(problems))
		}),
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry, coordinator and health diagnostics",
		Args:  cobra.NoArgs,
		RunE: a.session(func(ctx context.Context, args []string) error {
			fmt.Fprint(a.out, a.mgr.Diagnostics())

			h := a.mgr.Health()
			fmt.Fprintf(a.out, "Health: %s\n", h.Status)
			names := make([]string, 0, len(h.Components))
			for name := range h.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				c := h.Components[name]
				line := fmt.Sprintf("  %-14s %s", name, c.Status)
				if c.Message != "" {
					line += ": " + c.Message
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		}),
	}
}

func (a *app) presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage named presets",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the working state as a named preset",
			Args:  cobra.ExactArgs(1),
			RunE: a.session(func(ctx context.Context, args []string) error {
				if err := a.mgr.SavePreset(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "saved preset %q\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "load <name>",
			Short: "Load a named preset into the working state",
			Args:  cobra.ExactArgs(1),
			RunE: a.session(func(ctx context.Context, args []string) error {
				if err := a.mgr.LoadPreset(ctx, args[0]); err != nil {
					return err
				}
				if err := a.persist(ctx); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "loaded preset %q\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List saved presets",
			Args:  cobra.NoArgs,
			RunE: a.session(func(ctx context.Context, args []string) error {
				names, err := a.mgr.Presets(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					if n == a.presetName {
						fmt.Fprintf(a.out, "%s (working)\n", n)
						continue
					}
					fmt.Fprintln(a.out, n)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a saved preset",
			Args:  cobra.ExactArgs(1),
			RunE: a.session(func(ctx context.Context, args []string) error {
				if args[0] == a.presetName {
					return fmt.Errorf("cannot delete the working preset %q", args[0])
				}
				return a.mgr.DeletePreset(ctx, args[0])
			}),
		},
	)
	return cmd
}

func (a *app) selectSystems(args []string) ([]registry.SystemType, error) {
	if len(args) == 0 {
		return a.mgr.Registry().Systems(), nil
	}
	out := make([]registry.SystemType, 0, len(args))
	for _, arg := range args {
		st, err := registry.ParseSystemType(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// format prints three component vectors as colors alongside their components.
func format(v value.Value) string {
	if hex, ok := v.Hex(); ok {
		return fmt.Sprintf("%s (%s)", v, hex)
	}
	return v.String()
}
