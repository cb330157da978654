package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	stepsFile    = "steps.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Preset     string             `json:"preset"`
	Timestamp  time.Time          `json:"timestamp"`
	SimHz      float64            `json:"sim_hz"`
	ControlHz  float64            `json:"control_hz"`
	Steps      int                `json:"steps"`
	Integrator string             `json:"integrator"`
	Actuation  string             `json:"actuation"`
	Policy     string             `json:"policy"`
	Command    dynamo.Command     `json:"command"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Columns is the steps.csv header: time, the observation in external order,
// then the action chosen from that observation.
func Columns() []string {
	names := joints.MustIndexMap(joints.Go1External).Names()
	cols := []string{"time", "g_x", "g_y", "g_z", "cmd_vx", "cmd_vy", "cmd_yaw"}
	for _, prefix := range []string{"q_", "dq_", "last_", "action_"} {
		for _, n := range names {
			cols = append(cols, prefix+string(n))
		}
	}
	return cols
}

// Save writes meta and result under a fresh run id and returns the id.
// meta.ID, Timestamp and Steps are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if result == nil {
		return "", errors.New("storage: nil result")
	}
	prefix := meta.Preset
	if prefix == "" {
		prefix = "run"
	}
	runID := fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "create run directory")
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Steps = result.StepsTaken
	if meta.Metrics == nil {
		meta.Metrics = result.Metrics
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSteps(filepath.Join(runDir, stepsFile), result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrapf(enc.Encode(v), "encode %s", path)
}

func writeSteps(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns()); err != nil {
		return errors.Wrap(err, "write header")
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, obs := range result.Observations {
		row := make([]string, 0, 1+dynamo.ObservationSize+dynamo.JointCount)
		t := 0.0
		if i < len(result.Times) {
			t = result.Times[i]
		}
		row = append(row, format(t))
		for _, v := range obs {
			row = append(row, format(v))
		}
		var action dynamo.JointVector
		if i < len(result.Actions) {
			action = result.Actions[i]
		}
		for _, v := range action {
			row = append(row, format(v))
		}
		if err := w.Write(row); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}

	w.Flush()
	return errors.Wrap(w.Error(), "flush steps")
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s metadata", runID)
	}
	return &meta, nil
}

// LoadSteps reads a run's steps back into a result, one sample per row.
func (s *Store) LoadSteps(runID string) (*sim.Result, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, stepsFile))
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Columns())

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "run %s steps", runID)
	}

	result := &sim.Result{Metrics: map[string]float64{}}
	if len(records) < 2 {
		return result, nil
	}

	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "run %s row %d column %d", runID, i+1, j)
			}
			vals[j] = v
		}

		var obs dynamo.Observation
		copy(obs[:], vals[1:1+dynamo.ObservationSize])
		var action dynamo.JointVector
		copy(action[:], vals[1+dynamo.ObservationSize:])

		result.Times = append(result.Times, vals[0])
		result.Observations = append(result.Observations, obs)
		result.Actions = append(result.Actions, action)
		result.Commands = append(result.Commands, obs.Command())
	}

	result.StepsTaken = len(result.Observations)

	if meta, err := s.Load(runID); err == nil {
		for k, v := range meta.Metrics {
			result.Metrics[k] = v
		}
	}
	return result, nil
}
