package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/spf13/cobra"
)

var photoCmd = &cobra.Command{
	Use:   "photo <image>",
	Short: "Mark attendance from a group photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := rollcall.photoPipeline()
		if err != nil {
			return err
		}
		res, err := p.RunFile(ctx, args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if path := rollcall.cfg.DebugImage; path != "" {
			if err := imagefile.SaveJPEG(path, res.Annotated); err != nil {
				logger.Named("photo").Warn(ctx, "saving debug image failed", logger.Error(err))
			} else if abs, err := filepath.Abs(path); err == nil {
				fmt.Fprintf(w, "Debug image saved to: %s\n", abs)
			}
		}

		if res.Present.Len() == 0 {
			fmt.Fprintln(w, res.Message)
			return nil
		}

		r := attendance.Reconcile(rollcall.store.All(), res.Present, time.Now())
		path, err := rollcall.publisher.Publish(ctx, r, attendance.PhotoPrefix)
		if err != nil {
			return fmt.Errorf("failed to save text report: %w", err)
		}
		fmt.Fprintln(w, res.Message)
		fmt.Fprintf(w, "Text report saved: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(photoCmd)
}
