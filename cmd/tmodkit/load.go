package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/tmodkit/internal/loader"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/pipeline"
	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// hostFlags describe the scene mods are loaded into.
type hostFlags struct {
	document      string
	defaultShader string
}

func (h *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&h.document, "host", "", "scene document describing the host (types, shaders, roots)")
	cmd.Flags().StringVar(&h.defaultShader, "default-shader", "", "host shader assigned to materials left without one")
}

// session builds a loader session on the host scene described by h. With no
// document the host is empty and knows no types or shaders.
func (a *app) session(h hostFlags, mods *loader.Collection) (*loader.Session, *scene.Scene, error) {
	host := scene.New("host")
	lib := scene.Shaders{}
	types := sandbox.NewRegistry()
	if h.document != "" {
		doc, err := scene.LoadDocument(h.document)
		if err != nil {
			return nil, nil, err
		}
		if types, err = sandbox.FromDocument(doc); err != nil {
			return nil, nil, err
		}
		if host, err = doc.Scene(types.Bind); err != nil {
			return nil, nil, err
		}
		lib = doc.Library()
	}

	opts := []loader.Option{
		loader.WithLogger(a.L),
		loader.WithMetrics(a.metrics),
		loader.WithFrames(pipeline.RateFrames(a.conf.FrameRate)),
		loader.FailClosed(a.conf.FailClosedFilter),
	}
	if mods != nil {
		opts = append(opts, loader.WithCollection(mods))
	}
	if h.defaultShader != "" {
		sh := lib.Find(h.defaultShader)
		if sh == nil {
			return nil, nil, xerrors.Newf("default shader %q is not in the host library", h.defaultShader)
		}
		opts = append(opts, loader.WithDefaultShader(sh))
	}

	s, err := loader.NewSession(host, lib, types, loader.Options{WorkDir: a.conf.WorkDir}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, host, nil
}

// loadAndActivate runs the load sequence and optionally switches every
// loaded mod on.
func (a *app) loadAndActivate(ctx context.Context, s *loader.Session, activate bool) ([]loader.Outcome, error) {
	outcomes, err := s.LoadAll(ctx)
	for _, o := range outcomes {
		switch {
		case o.Abandoned:
			log.ForMod(a.L, o.Name).Warn(ctx, "package abandoned")
		case o.Err != nil:
			log.ForMod(a.L, o.Name).Error(ctx, o.Err, "package failed")
		default:
			log.ForMod(a.L, o.Name).Info(ctx, "package loaded")
		}
	}
	if err != nil {
		return outcomes, err
	}
	if activate {
		for _, m := range s.Mods().Get().Mods {
			if err := s.Activate(m.Name); err != nil {
				return outcomes, err
			}
		}
	}
	return outcomes, nil
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		h        hostFlags
		activate bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load every .tmod under <work-dir>/Mods into the host scene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.context(cmd)
			s, _, err := a.session(h, nil)
			if err != nil {
				return err
			}
			outcomes, err := a.loadAndActivate(ctx, s, activate)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MOD\tRESULT\tROOTS\tSHADERS\tREMOVED\tLIGHTMAP BINDINGS")
			for _, o := range outcomes {
				m, ok := s.Mods().Find(o.Name)
				if !ok {
					result := "failed"
					if o.Abandoned {
						result = "abandoned"
					}
					fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", o.Name, result)
					continue
				}
				fmt.Fprintf(tw, "%s\tloaded\t%d\t%d\t%d\t%d\n",
					m.Name, len(m.Roots), len(m.Shaders), len(m.Removed), len(m.Bindings))
			}
			return tw.Flush()
		},
	}
	h.register(cmd)
	cmd.Flags().BoolVar(&activate, "activate", false, "activate loaded mods so their components wake")
	return cmd
}
