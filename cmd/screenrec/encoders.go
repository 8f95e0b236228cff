package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go2tv.app/screenrec/internal/codec"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/supervisor"
)

var probeEncoders bool

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "List codec presets and whether ffmpeg supports them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEncoders(cmd.Context())
	},
}

func init() {
	encodersCmd.Flags().BoolVar(&probeEncoders, "probe", false, "run a short test encode for every available preset")
}

type presetStatus struct {
	preset    codec.Preset
	available bool
	probeErr  error
}

func listEncoders(ctx context.Context) error {
	reg := supervisor.NewRegistry()
	defer reg.KillAll(cfg.KillWait)
	sup := newSupervisor(reg)

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	available, err := codec.Available(ctx, sup)
	if err != nil {
		return err
	}

	presets := catalog.All()
	status := make([]presetStatus, len(presets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, p := range presets {
		_, ok := available[p.Encoder]
		status[i] = presetStatus{preset: p, available: ok}
		if !ok || !probeEncoders {
			continue
		}
		g.Go(func() error {
			status[i].probeErr = codec.Probe(gctx, sup, p)
			if status[i].probeErr != nil {
				log.Debug("probe failed", "preset", p.Name, logging.KeyError, status[i].probeErr)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENCODER\tHW\tSTATUS\tDESCRIPTION")
	for _, s := range status {
		state := "missing"
		switch {
		case s.available && !probeEncoders:
			state = "listed"
		case s.available && s.probeErr == nil:
			state = "ok"
		case s.available:
			state = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", s.preset.Name, s.preset.Encoder, s.preset.Hardware, state, s.preset.Description)
	}
	return tw.Flush()
}
