// Package export renders schedules in formats downstream tooling ingests.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/volteq/flexplan/core/model"
)

// Row is one asset setpoint for one horizon period.
type Row struct {
	AssetID     string    `json:"asset_id"`
	PeriodStart time.Time `json:"period_start"`
	PowerKW     float64   `json:"power_kw"`
}

// Rows flattens a schedule into per-asset, per-period rows ordered by asset
// then time.
func Rows(s model.Schedule) []Row {
	ids := make([]string, 0, len(s.SetpointsKW))
	for id := range s.SetpointsKW {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]Row, 0, len(ids)*s.Horizon.Len())
	for _, id := range ids {
		sp := s.SetpointsKW[id]
		for i := 0; i < s.Horizon.Len() && i < len(sp); i++ {
			rows = append(rows, Row{AssetID: id, PeriodStart: s.Horizon.Period(i).Start, PowerKW: sp[i]})
		}
	}
	return rows
}

// WriteJSON writes the schedule rows to w as a JSON array.
func WriteJSON(w io.Writer, s model.Schedule) error {
	return json.NewEncoder(w).Encode(Rows(s))
}

// WriteCSV writes the schedule rows to w with asset_id, period_start and
// power_kw columns.
func WriteCSV(w io.Writer, s model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"asset_id", "period_start", "power_kw"}); err != nil {
		return err
	}
	for _, r := range Rows(s) {
		rec := []string{
			r.AssetID,
			r.PeriodStart.Format(time.RFC3339),
			strconv.FormatFloat(r.PowerKW, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
