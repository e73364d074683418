// Package report renders trial status lines and per-mode summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/signalnine/ripedome/internal/result"
)

type Format string

const (
	FormatBash  Format = "bash"
	FormatLatex Format = "latex"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

var formats = []Format{FormatBash, FormatLatex, FormatTable, FormatJSON}

// ParseFormats accepts format names given as repeated values, comma
// separated lists, or both. Duplicates are dropped; order is kept.
func ParseFormats(values []string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			f, err := parseFormat(name)
			if err != nil {
				return nil, err
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []Format{FormatBash}
	}
	return out, nil
}

func parseFormat(name string) (Format, error) {
	for _, f := range formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want bash, latex, table or json)", name)
}

// WriteSummary renders the per-mode aggregates in format f.
func WriteSummary(w io.Writer, f Format, aggs []result.ModeAggregate, color bool) error {
	switch f {
	case FormatBash:
		return writeBash(w, aggs, color)
	case FormatLatex:
		return writeLatex(w, aggs)
	case FormatTable:
		return writeTable(w, aggs)
	case FormatJSON:
		return writeJSON(w, aggs)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

func writeBash(w io.Writer, aggs []result.ModeAggregate, color bool) error {
	for _, a := range aggs {
		title := paint("||Summary "+string(a.Mode)+"||", ansiBold, 0, color)
		if _, err := fmt.Fprintf(w, "\n%s\nOK: %d SOME: %d FAIL: %d NP: %d Total Attacks: %d\n\n\n",
			title, a.OK, a.Some, a.Fail, a.NP, a.Attempted()); err != nil {
			return err
		}
	}
	return nil
}

const latexHeader = `\begin{tabular}{|c|c|c|c|}\hline
\thead{Setup} & \thead{Functional \\ attacks} & \thead{Partly functional \\ attacks} & \thead{Nonfunctional \\ attacks}\\\hline\hline

`

func percent(a *result.ModeAggregate, n int) int {
	return int(math.Round(100 * a.Ratio(n)))
}

func writeLatex(w io.Writer, aggs []result.ModeAggregate) error {
	if _, err := io.WriteString(w, latexHeader); err != nil {
		return err
	}
	for i := range aggs {
		a := &aggs[i]
		if _, err := fmt.Fprintf(w, " (%s) & %d (%d\\%%) & %d (%d\\%%) & %d (%d\\%%) \\\\ \\hline\n\n",
			a.Mode,
			a.OK, percent(a, a.OK),
			a.Some, percent(a, a.Some),
			a.Fail, percent(a, a.Fail)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\\end{tabular}\n\n")
	return err
}

func writeTable(w io.Writer, aggs []result.ModeAggregate) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Mode", "OK", "Some", "Fail", "NP", "Total", "OK %"})
	for i := range aggs {
		a := &aggs[i]
		table.Append([]string{
			string(a.Mode),
			strconv.Itoa(a.OK),
			strconv.Itoa(a.Some),
			strconv.Itoa(a.Fail),
			strconv.Itoa(a.NP),
			strconv.Itoa(a.Attempted()),
			strconv.Itoa(percent(a, a.OK)) + "%",
		})
	}
	table.Render()
	return nil
}

type jsonRow struct {
	Mode      string  `json:"mode"`
	OK        int     `json:"ok"`
	Some      int     `json:"some"`
	Fail      int     `json:"fail"`
	NP        int     `json:"np"`
	Total     int     `json:"total"`
	OKRatio   float64 `json:"ok_ratio"`
	SomeRatio float64 `json:"some_ratio"`
	FailRatio float64 `json:"fail_ratio"`
}

func writeJSON(w io.Writer, aggs []result.ModeAggregate) error {
	rows := make([]jsonRow, 0, len(aggs))
	for i := range aggs {
		a := &aggs[i]
		rows = append(rows, jsonRow{
			Mode:      string(a.Mode),
			OK:        a.OK,
			Some:      a.Some,
			Fail:      a.Fail,
			NP:        a.NP,
			Total:     a.Attempted(),
			OKRatio:   a.Ratio(a.OK),
			SomeRatio: a.Ratio(a.Some),
			FailRatio: a.Ratio(a.Fail),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
