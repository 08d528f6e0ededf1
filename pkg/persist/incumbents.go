// Package persist implements the best-effort persistence collaborator:
// Pareto-front snapshots as JSON and the full evaluation history in a
// SQLite store. Every writer here is fire-and-forget from the
// scheduler's point of view; failures are reported back and logged, the
// run continues.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/XiaoConstantine/mohb-go/pkg/mohb"
)

// incumbentRecord is the JSON shape of one Pareto-front member.
type incumbentRecord struct {
	ID      string                 `json:"id"`
	Config  mohb.Configuration     `json:"config"`
	Budget  float64                `json:"budget"`
	Fitness map[string]float64     `json:"fitness"`
	Cost    float64                `json:"cost"`
	Info    map[string]interface{} `json:"info,omitempty"`
}

// IncumbentWriter snapshots the current Pareto front to
// incumbents_<name>.json under the output path.
type IncumbentWriter struct {
	outputPath string
}

func NewIncumbentWriter(outputPath string) *IncumbentWriter {
	return &IncumbentWriter{outputPath: outputPath}
}

// SaveIncumbents overwrites the incumbent snapshot for the run.
func (w *IncumbentWriter) SaveIncumbents(name string, front []*mohb.Trial) error {
	records := make([]incumbentRecord, 0, len(front))
	for _, t := range front {
		records = append(records, incumbentRecord{
			ID:      t.ID,
			Config:  t.Config,
			Budget:  t.Budget,
			Fitness: t.Fitness,
			Cost:    t.Cost,
			Info:    t.Info,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode incumbents: %w", err)
	}

	path := filepath.Join(w.outputPath, fmt.Sprintf("incumbents_%s.json", name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write incumbents: %w", err)
	}
	return nil
}
