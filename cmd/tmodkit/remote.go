package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/tmodkit/internal/cfg"
	"github.com/keithlinneman/tmodkit/internal/loader"
	"github.com/keithlinneman/tmodkit/internal/remote"
)

func (a *app) channel(ctx context.Context) (*remote.Channel, error) {
	if err := cfg.ValidateRemote(a.conf); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return remote.New(ctx, remote.Options{
		Logger:   a.L,
		SSMParam: a.conf.SSMParam,
		S3Bucket: a.conf.S3Bucket,
		S3Prefix: a.conf.S3Prefix,
		KMSKeyID: a.conf.KMSKeyID,
	})
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <mod.tmod>",
		Short: "Upload a built mod and point the release parameter at it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd)
			ch, err := a.channel(ctx)
			if err != nil {
				return err
			}
			hash, err := ch.Publish(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:   "fetch <name>",
		Short: "Download the released mod into <work-dir>/Mods/<name>.tmod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd)
			ch, err := a.channel(ctx)
			if err != nil {
				return err
			}
			modsDir := filepath.Join(a.conf.WorkDir, loader.ModsDirName)
			var dst string
			if hash != "" {
				dst, err = ch.FetchHash(ctx, modsDir, args[0], hash)
			} else {
				dst, err = ch.Fetch(ctx, modsDir, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "fetch this sha256 instead of the current release")
	return cmd
}
