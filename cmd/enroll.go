package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <roll-no> <name> <image>",
	Short: "Register a student from a photo showing exactly their face",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := rollcall.enroller()
		if err != nil {
			return err
		}
		out, err := e.EnrollFile(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return rollcall.storeErr(err)
		}
		if out.Replaced {
			fmt.Fprintf(cmd.OutOrStdout(), "Roll number %s already existed and was overwritten.\n", out.RollNo)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Message())
		return nil
	},
}

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <dir>",
	Short: "Register every <roll>_<name>.jpg photo in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := rollcall.enroller()
		if err != nil {
			return err
		}
		sum, err := e.EnrollDir(cmd.Context(), args[0], os.Stderr)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w)
		for _, r := range sum.Results {
			if r.Err != nil {
				rollcall.storeErr(r.Err)
				fmt.Fprintf(w, "FAILED  %s: %v\n", r.File, r.Err)
			}
		}
		for _, f := range sum.Unmatched {
			fmt.Fprintf(w, "SKIPPED %s: name is not <roll>_<name>\n", f)
		}
		fmt.Fprintf(w, "Enrolled %d, failed %d, skipped %d.\n", sum.Enrolled, sum.Failed, len(sum.Unmatched))
		if sum.Failed > 0 {
			return fmt.Errorf("%d photos could not be enrolled", sum.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(enrollDirCmd)
}
