package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/emdict"
	"github.com/grhack/emstore/store/emlist"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <path>",
		Short: "Show occupancy and load-factor statistics for a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
}

type statsReport struct {
	Path       string  `json:"path"`
	Kind       string  `json:"kind"`
	Count      uint64  `json:"count"`
	SlotCount  uint64  `json:"slot_count,omitempty"`
	Tombstones uint64  `json:"tombstones,omitempty"`
	LoadFactor float64 `json:"load_factor,omitempty"`
}

func peekKind(path string) (uint16, error) {
	c, err := store.Open(path, openOptions())
	if err != nil {
		return 0, err
	}
	kind := c.Kind()
	return kind, c.Close()
}

func runStats(path string) error {
	kind, err := peekKind(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	var report statsReport
	report.Path = path

	switch kind {
	case format.KindList:
		l, err := emlist.Open(path, openOptions())
		if err != nil {
			return err
		}
		defer l.Close()
		report.Kind = "list"
		report.Count = l.Len()
	case format.KindDict:
		d, err := emdict.Open(path, openOptions())
		if err != nil {
			return err
		}
		defer d.Close()
		report.Kind = "dict"
		report.Count = d.Len()
		hdr := dictHeader(d)
		report.SlotCount = hdr.SlotCountOrZero
		report.Tombstones = hdr.Tombstones
		if hdr.SlotCountOrZero > 0 {
			report.LoadFactor = float64(hdr.LengthOrOcc+hdr.Tombstones) / float64(hdr.SlotCountOrZero)
		}
	default:
		return fmt.Errorf("unknown container kind %d", kind)
	}

	if jsonOut {
		return printJSON(report)
	}

	printf("path:        %s\n", report.Path)
	printf("kind:        %s\n", report.Kind)
	printf("count:       %d\n", report.Count)
	if report.Kind == "dict" {
		printf("slot count:  %d\n", report.SlotCount)
		printf("tombstones:  %d\n", report.Tombstones)
		printf("load factor: %.3f\n", report.LoadFactor)
	}
	return nil
}

// dictHeader reaches the container's header snapshot through the small
// surface emdict exposes; stats needs the slot/tombstone counts that
// Dict.Len() alone doesn't report.
func dictHeader(d *emdict.Dict) format.Header {
	return d.Container().HeaderSnapshot()
}
