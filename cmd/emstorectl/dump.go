package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/width"

	"github.com/grhack/emstore/internal/format"
	"github.com/grhack/emstore/store/emdict"
	"github.com/grhack/emstore/store/emlist"
)

var dumpLimit int

func init() {
	cmd := newDumpCmd()
	cmd.Flags().IntVar(&dumpLimit, "limit", 20, "maximum number of entries to print (0 = all)")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <path>",
		Short: "Print a preview of a container's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args[0])
		},
	}
}

func runDump(path string) error {
	kind, err := peekKind(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	switch kind {
	case format.KindList:
		return dumpList(path)
	case format.KindDict:
		return dumpDict(path)
	default:
		return fmt.Errorf("unknown container kind %d", kind)
	}
}

func dumpList(path string) error {
	l, err := emlist.Open(path, openOptions())
	if err != nil {
		return err
	}
	defer l.Close()

	count := 0
	return l.Iter(func(i uint64, v any) bool {
		if dumpLimit > 0 && count >= dumpLimit {
			return false
		}
		printf("%6d  %s\n", i, previewColumn(v, 48))
		count++
		return true
	})
}

func dumpDict(path string) error {
	d, err := emdict.Open(path, openOptions())
	if err != nil {
		return err
	}
	defer d.Close()

	count := 0
	return d.IterItems(func(k, v any) bool {
		if dumpLimit > 0 && count >= dumpLimit {
			return false
		}
		printf("%-24s  %s\n", previewColumn(k, 24), previewColumn(v, 48))
		count++
		return true
	})
}

// previewColumn renders v as a single-line preview padded to colWidth
// display cells. East-Asian wide/fullwidth runes occupy two cells, so a
// naive len()-based pad would misalign columns containing them.
func previewColumn(v any, colWidth int) string {
	s := fmt.Sprintf("%v", v)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "..."
	}
	w := visualWidth(s)
	if w >= colWidth {
		return s
	}
	return s + strings.Repeat(" ", colWidth-w)
}

func visualWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}
