package datarecording

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowlab/flowsim/ledger"
	"github.com/flowlab/flowsim/sim"
)

// Table names used by the exporter.
const (
	ActivityTable = "activities"
	EventTable    = "events"
)

// An ActivityRow is the flat form of a ledger entry. Structured values are
// JSON-encoded so every column is a scalar.
type ActivityRow struct {
	Sequence       uint64
	Time           int64
	NodeID         string
	Action         string
	Value          string
	CorrelationIDs string
}

// An EventRow is the flat form of a consumed event.
type EventRow struct {
	ID             string
	Time           int64
	Kind           string
	SourceNode     string
	TargetNode     string
	CausedBy       string
	Value          string
	CorrelationIDs string
}

// An Exporter writes ledgers and event histories through a DataRecorder.
type Exporter struct {
	rec DataRecorder
}

// NewExporter creates the activity and event tables on the recorder.
func NewExporter(rec DataRecorder) *Exporter {
	rec.CreateTable(ActivityTable, ActivityRow{})
	rec.CreateTable(EventTable, EventRow{})

	return &Exporter{rec: rec}
}

// ExportLedger records the given entries.
func (x *Exporter) ExportLedger(entries []ledger.Entry) {
	for _, e := range entries {
		x.rec.InsertData(ActivityTable, ActivityRow{
			Sequence:       e.Sequence,
			Time:           int64(e.Time),
			NodeID:         e.NodeID,
			Action:         e.Action,
			Value:          encodeValue(e.Value),
			CorrelationIDs: strings.Join(e.CorrelationIDs, ","),
		})
	}
}

// ExportHistory records the consumed events, oldest first.
func (x *Exporter) ExportHistory(events []*sim.Event) {
	for _, evt := range events {
		row := EventRow{
			ID:         evt.ID,
			Time:       int64(evt.Time),
			Kind:       string(evt.Kind),
			SourceNode: evt.SourceNode,
			TargetNode: evt.TargetNode,
			CausedBy:   evt.CausedBy,
		}

		if evt.Token != nil {
			row.Value = encodeValue(evt.Token.Value)
			row.CorrelationIDs = strings.Join(evt.Token.CorrelationIDs, ",")
		}

		x.rec.InsertData(EventTable, row)
	}
}

// Flush flushes the underlying recorder.
func (x *Exporter) Flush() {
	x.rec.Flush()
}

// ReadActivities reads an exported ledger back, ordered by sequence.
func ReadActivities(ctx context.Context, r DataReader) ([]ActivityRow, error) {
	r.MapTable(ActivityTable, ActivityRow{})

	rows, _, err := r.Query(ctx, ActivityTable, QueryParams{OrderBy: "Sequence"})
	if err != nil {
		return nil, err
	}

	out := make([]ActivityRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(ActivityRow))
	}

	return out, nil
}

func encodeValue(v any) string {
	if v == nil {
		return ""
	}

	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(b)
}
