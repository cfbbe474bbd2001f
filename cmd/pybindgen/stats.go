package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/refaktor/pybindgen"
	"github.com/refaktor/pybindgen/ir"
)

func printStats(w io.Writer, res *pybindgen.Result) {
	totals := map[ir.Kind]int{}
	for _, it := range res.Table.Items() {
		if k := it.Common().Kind; k != ir.KindImport {
			totals[k]++
		}
	}

	fmt.Fprintf(w, "==Binding stats==\n")
	fmt.Fprintf(w, "%v diagnostics.\n", len(res.Diagnostics))
	{
		tbl := tablewriter.NewWriter(w)
		tbl.SetHeader([]string{"Kind", "Emitted/Total"})
		var emitted, total int
		kinds := make([]ir.Kind, 0, len(totals))
		for k := range totals {
			kinds = append(kinds, k)
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			tbl.Append([]string{k.String(), fmt.Sprintf("%v/%v", res.Counts[k], totals[k])})
			emitted += res.Counts[k]
			total += totals[k]
		}
		tbl.Append([]string{"==TOTAL==", fmt.Sprintf("%v/%v", emitted, total)})
		tbl.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})
		tbl.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		tbl.SetCenterSeparator("|")
		tbl.Render()
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "==Timing stats==\n")
	{
		var timeTotal time.Duration
		for _, tm := range res.Timings {
			timeTotal += tm.Duration
		}
		timePercent := func(t time.Duration) string {
			if timeTotal == 0 {
				return "0.00"
			}
			return strconv.FormatFloat(
				float64(t)/float64(timeTotal)*100,
				'f', 2, 64,
			)
		}

		tbl := tablewriter.NewWriter(w)
		tbl.SetHeader([]string{"Task", "Time", "Time %"})
		for _, tm := range res.Timings {
			tbl.Append([]string{tm.Phase, tm.Duration.String(), timePercent(tm.Duration)})
		}
		tbl.Append([]string{"==TOTAL==", timeTotal.String(), "100"})
		tbl.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_RIGHT})
		tbl.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		tbl.SetCenterSeparator("|")
		tbl.Render()
	}
}
