package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Print a container's header metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args[0])
		},
	}
}

// infoReport is the JSON shape for `info --json`; field names mirror the
// on-disk header layout documented in spec.md's External Interfaces section.
type infoReport struct {
	Path             string `json:"path"`
	Kind             string `json:"kind"`
	ExtentSizeBytes  int    `json:"extent_size_bytes"`
	ExtentCount      uint64 `json:"extent_count"`
	FreeListHead     uint64 `json:"free_list_head"`
	HighWater        uint64 `json:"high_water"`
	Root             uint64 `json:"root"`
	LengthOrOccupied uint64 `json:"length_or_occupied"`
	SlotCount        uint64 `json:"slot_count,omitempty"`
	Tombstones       uint64 `json:"tombstones,omitempty"`
	HashSeed         uint64 `json:"hash_seed,omitempty"`
}

func runInfo(path string) error {
	c, err := store.Open(path, openOptions())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer c.Close()

	hdr := c.HeaderSnapshot()
	kind := "list"
	if hdr.Kind == format.KindDict {
		kind = "dict"
	}

	report := infoReport{
		Path:             path,
		Kind:             kind,
		ExtentSizeBytes:  1 << hdr.ExtentSizeLog2,
		ExtentCount:      hdr.ExtentCount,
		FreeListHead:     hdr.FreeListHead,
		HighWater:        hdr.HighWater,
		Root:             hdr.Root,
		LengthOrOccupied: hdr.LengthOrOcc,
	}
	if kind == "dict" {
		report.SlotCount = hdr.SlotCountOrZero
		report.Tombstones = hdr.Tombstones
		report.HashSeed = hdr.HashSeed
	}

	if jsonOut {
		return printJSON(report)
	}

	printf("path:             %s\n", report.Path)
	printf("kind:             %s\n", report.Kind)
	printf("extent size:      %d bytes\n", report.ExtentSizeBytes)
	printf("extent count:     %d\n", report.ExtentCount)
	printf("free list head:   %#x\n", report.FreeListHead)
	printf("high water:       %#x\n", report.HighWater)
	printf("root:             %#x\n", report.Root)
	if kind == "list" {
		printf("length:           %d\n", report.LengthOrOccupied)
	} else {
		printf("occupied:         %d\n", report.LengthOrOccupied)
		printf("slot count:       %d\n", report.SlotCount)
		printf("tombstones:       %d\n", report.Tombstones)
		printf("hash seed:        %#x\n", report.HashSeed)
	}
	return nil
}
