package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roster := rollcall.store.All()
		if len(roster) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No students registered.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROLL NO\tNAME\tPHOTO")
		for _, id := range roster {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id.RollNo, id.Name, id.Path)
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <roll-no>",
	Short: "Remove a student, their reference photo and their register rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := rollcall.deleter().Delete(cmd.Context(), args[0])
		if err != nil {
			return rollcall.storeErr(err)
		}
		if !removed {
			return fmt.Errorf("roll number %s not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted student with roll no %s.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}
