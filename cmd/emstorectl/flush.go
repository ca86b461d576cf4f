package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store/emdict"
	"github.com/grhack/emstore/store/emlist"
)

func init() {
	rootCmd.AddCommand(newFlushCmd())
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush <path>",
		Short: "Open a container, flush its header and dirty extents, and close it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(args[0])
		},
	}
}

func runFlush(path string) error {
	kind, err := peekKind(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	switch kind {
	case format.KindList:
		l, err := emlist.Open(path, openOptions())
		if err != nil {
			return err
		}
		defer l.Close()
		if err := l.Flush(); err != nil {
			return err
		}
	case format.KindDict:
		d, err := emdict.Open(path, openOptions())
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Flush(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown container kind %d", kind)
	}

	printf("flushed %s\n", path)
	return nil
}
