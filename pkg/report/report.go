// Package report prints job listings and classification summaries.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
	"github.com/mattn/go-isatty"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var colorCodes = map[string]string{
	"red":    "\033[0;31m",
	"yellow": "\033[0;33m",
	"green":  "\033[0;32m",
	"normal": "",
}

const colorReset = "\033[0m"

// DefaultColors highlights malicious objects.
var DefaultColors = map[string]string{"malicious": "red"}

// SortKeys lists the accepted --sort values.
var SortKeys = []string{"object_id", "classification", "origin"}

// Options controls list and tree output.
type Options struct {
	SortBy         string
	Classification string
	Color          bool
	Colors         map[string]string // classification -> color name
}

// UseColor resolves a --color mode for out. Auto mode never colors a nil out.
func UseColor(mode string, out *os.File) (bool, error) {
	switch mode {
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	case ColorAuto, "":
		if out == nil {
			return false, nil
		}
		fd := out.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), nil
	}
	return false, fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
}

// FormatRow renders one object as "id  c  o  display", with classification
// and origin shortened to their first letter.
func FormatRow(v mapreduce.Value) string {
	return fmt.Sprintf("%6s  %.1s  %.1s  %s", v.ObjectID, v.Classification.String(), v.Origin.String(), v.Display)
}

func (o Options) line(v mapreduce.Value) string {
	row := FormatRow(v)
	if !o.Color {
		return row
	}
	colors := o.Colors
	if colors == nil {
		colors = DefaultColors
	}
	name, ok := colors[v.Classification.String()]
	if !ok {
		name = "normal"
	}
	return colorCodes[name] + row + colorReset
}

func (o Options) keep(v mapreduce.Value) bool {
	return o.Classification == "" || v.Classification.String() == o.Classification
}

func (o Options) less() (func(a, b mapreduce.Value) bool, error) {
	switch o.SortBy {
	case "":
		return nil, nil
	case "object_id":
		return func(a, b mapreduce.Value) bool { return mapreduce.LessObjectID(a.ObjectID, b.ObjectID) }, nil
	case "classification":
		return func(a, b mapreduce.Value) bool { return a.Classification.String() < b.Classification.String() }, nil
	case "origin":
		return func(a, b mapreduce.Value) bool { return a.Origin.String() < b.Origin.String() }, nil
	}
	return nil, fmt.Errorf("invalid sort key %q (want one of %s)", o.SortBy, strings.Join(SortKeys, ", "))
}

// PrintList writes one line per row that passes the classification filter.
func PrintList(w io.Writer, rows []mapreduce.Value, opts Options) error {
	less, err := opts.less()
	if err != nil {
		return err
	}
	sorted := append([]mapreduce.Value(nil), rows...)
	if less != nil {
		sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	}
	for _, v := range sorted {
		if !opts.keep(v) {
			continue
		}
		if _, err := fmt.Fprintln(w, opts.line(v)); err != nil {
			return err
		}
	}
	return nil
}

// PrintSummary writes a heading (the object type) and the classification
// counts under it, followed by their total.
func PrintSummary(w io.Writer, heading string, agg mapreduce.Aggregate) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", heading)
	for _, class := range agg.Keys() {
		fmt.Fprintf(&sb, " %-10s: %-5d\n", class, agg[class])
	}
	fmt.Fprintf(&sb, " TOTAL     : %d\n\n", agg.Total())
	_, err := io.WriteString(w, sb.String())
	return err
}
