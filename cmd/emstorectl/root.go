// Command emstorectl is a thin inspection and maintenance tool for EMList
// and EMDict container directories: header dump, occupancy stats, and
// flush. It never reaches into the engine's internals beyond the public
// store/emlist/emdict API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grhack/emstore/store"
)

var (
	jsonOut        bool
	quiet          bool
	windowCapacity int
)

var rootCmd = &cobra.Command{
	Use:     "emstorectl",
	Short:   "Inspect and maintain emstore EMList/EMDict container directories",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().IntVar(&windowCapacity, "window", 0, "mmap window capacity for this open (0 = use the store default)")
}

// openOptions builds the Options passed to every store.Open/emlist.Open/
// emdict.Open call this command makes. Only WindowCapacity is meaningful
// on reopen; every other field is ignored in favor of the persisted
// header.
func openOptions() store.Options {
	return store.Options{WindowCapacity: windowCapacity}
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printf(format string, args ...any) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
