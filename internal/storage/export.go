package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/quadsim/internal/sim"
)

type ExportData struct {
	RunMetadata
	Times        []float64   `json:"times"`
	Observations [][]float64 `json:"observations"`
	Actions      [][]float64 `json:"actions"`
}

func NewExportData(meta RunMetadata, result *sim.Result) ExportData {
	data := ExportData{
		RunMetadata:  meta,
		Times:        result.Times,
		Observations: make([][]float64, len(result.Observations)),
		Actions:      make([][]float64, len(result.Actions)),
	}
	if data.Metrics == nil {
		data.Metrics = result.Metrics
	}
	data.Steps = result.StepsTaken
	for i := range result.Observations {
		data.Observations[i] = result.Observations[i][:]
	}
	for i, a := range result.Actions {
		data.Actions[i] = a.Slice()
	}
	return data
}

// ExportJSON writes one run as indented JSON.
func ExportJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewExportData(meta, result))
}
