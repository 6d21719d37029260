package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/JaimeStill/tagger/pkg/poller"
)

type printer struct {
	w     io.Writer
	table bool
}

func newPrinter(w io.Writer, forceJSON bool) *printer {
	return &printer{w: w, table: !forceJSON && isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *printer) snapshots(snaps ...poller.Snapshot) {
	if !p.table {
		enc := json.NewEncoder(p.w)
		for _, s := range snaps {
			_ = enc.Encode(s)
		}
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "File", "Status", "Stage", "Tags", "Alt Text", "Error"})
	for _, s := range snaps {
		tw.AppendRow(table.Row{s.InstanceID, s.FileName, s.Status, s.Stage, s.Tags, s.AltText, s.Error})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 40},
		{Number: 6, WidthMax: 60},
		{Number: 7, WidthMax: 40, Colors: text.Colors{text.FgRed}},
	})
	fmt.Fprintln(p.w, tw.Render())
}
