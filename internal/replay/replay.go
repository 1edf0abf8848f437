// Package replay runs recorded report streams through the filter pipeline.
//
// Recordings are JSON Lines, one report.Record per line:
//
//	{"kind":"tablet","device":"pen","x":10,"y":10,"pressure":0.4}
//
// Blank lines and lines starting with '#' are skipped.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"pendrag/internal/config"
	"pendrag/internal/filter"
	"pendrag/internal/report"
	"pendrag/internal/service"
)

// Row pairs one input record with what left the pipeline for it
type Row struct {
	In    report.Record
	Out   report.Record
	Phase filter.Phase
}

// Moved reports whether the filter rewrote the position
func (r Row) Moved() bool {
	return r.In.X != r.Out.X || r.In.Y != r.Out.Y
}

// Load reads a JSON Lines recording
func Load(r io.Reader) ([]report.Event, error) {
	var events []report.Event
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec report.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e, err := rec.Event()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Run feeds events through fresh per-device pipelines built from cfg
func Run(events []report.Event, cfg filter.Config) ([]Row, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mgr, err := config.NewManagerAt("replay.json")
	if err != nil {
		return nil, err
	}
	if err := mgr.SetFilter(cfg); err != nil {
		return nil, err
	}

	svc := service.New(mgr)
	rows := make([]Row, 0, len(events))
	var cur *Row
	svc.AddSink(func(e report.Event, phase filter.Phase) {
		cur.Out = report.ToRecord(e)
		cur.Phase = phase
	})

	for _, e := range events {
		rows = append(rows, Row{In: report.ToRecord(e)})
		cur = &rows[len(rows)-1]
		svc.Process(e)
	}
	return rows, nil
}

// Render writes rows as a table
func Render(w io.Writer, rows []Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "DEVICE", "KIND", "IN", "PRESSURE", "OUT", "PHASE", ""})
	for i, r := range rows {
		mark := ""
		if r.Moved() {
			mark = "*"
		}
		t.AppendRow(table.Row{
			i + 1,
			r.In.Device,
			r.In.Kind,
			point(r.In),
			fmt.Sprintf("%.3f", r.In.Pressure),
			point(r.Out),
			r.Phase,
			mark,
		})
	}
	t.Render()
}

func point(rec report.Record) string {
	if rec.Kind != report.KindTablet {
		return "-"
	}
	return fmt.Sprintf("(%.2f, %.2f)", rec.X, rec.Y)
}
