package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/tmodkit/internal/assetbundle"
	"github.com/keithlinneman/tmodkit/internal/builder"
	"github.com/keithlinneman/tmodkit/internal/cfg"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scene"
)

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build <scene.yaml>",
		Short: "Package the content roots of a scene into <mod-name>.tmod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateBuild(a.conf); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx := a.context(cmd)

			doc, err := scene.LoadDocument(args[0])
			if err != nil {
				return err
			}
			types, err := sandbox.FromDocument(doc)
			if err != nil {
				return err
			}
			src, err := doc.Scene(types.Bind)
			if err != nil {
				return err
			}

			assets := assetbundle.FileBuilder{
				Compile: assetbundle.RequireRegistered(func(name string) bool {
					_, ok := types.Lookup(name)
					return ok
				}),
			}
			b, err := builder.New(src, types, assets,
				builder.Options{
					Name:      a.conf.ModName,
					OutputDir: a.conf.Output(),
					Target:    a.conf.BuildTarget,
				},
				builder.WithLogger(a.L),
				builder.WithMetrics(a.metrics),
				builder.WithNotifier(logNotifier(a.L)),
				builder.WithProgress(a.progress(ctx)),
			)
			if err != nil {
				return err
			}

			res, err := b.Build(ctx)
			if err != nil {
				return err
			}
			a.L.Info(ctx, "mod built",
				"mod", res.Outputs.Mod,
				"readable", res.Outputs.Readable,
				"roots", len(res.Prefabs),
				"scripts", len(res.Harvest.Scripts),
				"scripts_rejected", len(res.Harvest.Rejected),
				"shaders", len(res.Harvest.Shaders),
				"lightmaps", len(res.Harvest.Lightmaps),
			)
			fmt.Fprintln(cmd.OutOrStdout(), res.Outputs.Mod)
			return nil
		},
	}
}

// logNotifier surfaces build dialogs as log records; compile failures are
// errors, everything else is informational.
func logNotifier(L log.Logger) builder.Notifier {
	return builder.NotifierFunc(func(ctx context.Context, title, message string) {
		if title == builder.TitleCompileFailed {
			L.Error(ctx, builder.ErrHostCompilation, message, "title", title)
			return
		}
		L.Info(ctx, message, "title", title)
	})
}
