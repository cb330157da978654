package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/control"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/loop"
	"github.com/san-kum/quadsim/internal/physics"
)

// echoStepper reports the last action as the joint positions.
type echoStepper struct {
	cmd      dynamo.Command
	steps    int
	failAt   int
	notReady bool
}

func (e *echoStepper) Step(ctx context.Context, action []float64) (dynamo.Observation, error) {
	var obs dynamo.Observation
	if e.notReady {
		return obs, dynamo.Protocolf("not ready")
	}
	if e.failAt > 0 && e.steps == e.failAt {
		return obs, &dynamo.StepError{Step: e.steps, Wrapped: dynamo.ErrStepService}
	}
	e.steps++
	copy(obs[dynamo.ObsJointPos:], action)
	copy(obs[dynamo.ObsCommand:], e.cmd[:])
	return obs, nil
}

func (e *echoStepper) SetCommand(cmd dynamo.Command) { e.cmd = cmd }

type rampPolicy struct{}

func (rampPolicy) Act(obs dynamo.Observation, t float64) dynamo.JointVector {
	return dynamo.Fill(t)
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(obs dynamo.Observation, action dynamo.JointVector, time float64) {
	t.count++
	t.sum += action[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorRun(t *testing.T) {
	st := &echoStepper{}
	sim := New(st, rampPolicy{})

	result, err := sim.Run(context.Background(), Config{Steps: 10, Dt: 0.02})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Observations) != 10 || len(result.Times) != 10 || len(result.Actions) != 10 {
		t.Errorf("expected 10 samples, got %d observations, %d times, %d actions",
			len(result.Observations), len(result.Times), len(result.Actions))
	}
	if result.Times[0] != 0.02 {
		t.Errorf("expected first sample after one period, got %v", result.Times[0])
	}
	if result.StepsTaken != 10 || st.steps != 10 {
		t.Errorf("expected 10 steps, got %d/%d", result.StepsTaken, st.steps)
	}

	// The action at step i is chosen at t = i*dt and echoed back.
	final := result.Final()
	if got := final[dynamo.ObsJointPos]; got < 0.179 || got > 0.181 {
		t.Errorf("expected final echo 0.18, got %f", got)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&echoStepper{}, rampPolicy{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Steps: 10, Dt: 0}},
		{"negative dt", Config{Steps: 10, Dt: -0.1}},
		{"negative steps", Config{Steps: -1, Dt: 0.02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.cfg)
			if !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestSimulatorNotReady(t *testing.T) {
	sim := New(&echoStepper{notReady: true}, rampPolicy{})
	result, err := sim.Run(context.Background(), Config{Steps: 1, Dt: 0.02})
	if !errors.Is(err, dynamo.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
	if result == nil || len(result.Observations) != 0 {
		t.Error("a refused first step should record nothing")
	}
}

type seedPolicy struct{ first *dynamo.Observation }

func (p seedPolicy) Act(obs dynamo.Observation, t float64) dynamo.JointVector {
	if t == 0 {
		*p.first = obs
	}
	return dynamo.JointVector{}
}

func TestFirstActionFromZeroObservation(t *testing.T) {
	seen := dynamo.Observation{0: 7}

	if _, err := New(&echoStepper{}, seedPolicy{first: &seen}).Run(context.Background(), Config{Steps: 2, Dt: 0.02}); err != nil {
		t.Fatal(err)
	}
	if seen != (dynamo.Observation{}) {
		t.Errorf("expected a zero seed observation, got %v", seen)
	}
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&echoStepper{}, rampPolicy{})

	metric := &testMetric{count: 99}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), Config{Steps: 10, Dt: 0.1})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 10 {
		t.Errorf("expected 10 observations, got %d", metric.count)
	}
}

func TestSimulatorStepFailureKeepsPartialResult(t *testing.T) {
	sim := New(&echoStepper{failAt: 4}, rampPolicy{})
	metric := &testMetric{}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), Config{Steps: 10, Dt: 0.02})
	if !errors.Is(err, dynamo.ErrStepService) {
		t.Fatalf("expected step service error, got %v", err)
	}
	if result == nil || result.StepsTaken != 4 || len(result.Actions) != 4 {
		t.Fatalf("expected 4 recorded steps, got %+v", result)
	}
	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metrics should be collected for partial runs")
	}
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &echoStepper{}
	result, err := New(st, rampPolicy{}).Run(ctx, Config{Steps: 10, Dt: 0.02})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result.StepsTaken != 0 || st.steps != 0 {
		t.Error("no step should run after cancellation")
	}
}

func TestBeforeStepChangesCommand(t *testing.T) {
	sim := New(&echoStepper{}, control.NewZero())
	sim.AddBeforeStep(func(s Stepper, i int, t float64) {
		if i == 5 {
			s.SetCommand(dynamo.Command{0.5, 0, 0})
		}
	})

	result, err := sim.Run(context.Background(), Config{Steps: 10, Dt: 0.02})
	if err != nil {
		t.Fatal(err)
	}
	if result.Commands[4][0] != 0 || result.Commands[5][0] != 0.5 {
		t.Errorf("expected command switch at step 5, got %v / %v", result.Commands[4], result.Commands[5])
	}
}

func TestRunWithCallback(t *testing.T) {
	st := &echoStepper{}
	sim := New(st, rampPolicy{})

	calls := 0
	err := sim.RunWithCallback(context.Background(), Config{Steps: 10, Dt: 0.02}, func(dynamo.Observation, dynamo.JointVector, float64) bool {
		calls++
		return calls < 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 || st.steps != 2 {
		t.Errorf("expected 3 callbacks and 2 steps, got %d and %d", calls, st.steps)
	}
}

func sandboxFactory(built *atomic.Int32) Factory {
	return func(ctx context.Context, run int) (*Simulator, error) {
		cfg := config.DefaultConfig()
		cfg.SettleSeconds = 0.25
		l, err := loop.New(cfg, physics.NewSandbox())
		if err != nil {
			return nil, err
		}
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		built.Add(1)
		return New(l, control.NewTrot(cfg.Trot.Frequency*float64(run+1), cfg.Trot.Thigh, cfg.Trot.Calf)), nil
	}
}

func TestEnsembleOverSandbox(t *testing.T) {
	var built atomic.Int32
	results, err := NewEnsemble(sandboxFactory(&built), 3).Run(context.Background(), Config{Steps: 25, Dt: 0.02})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if built.Load() != 3 || len(results) != 3 {
		t.Fatalf("expected 3 members, got %d", len(results))
	}
	for i, r := range results {
		if r.StepsTaken != 25 {
			t.Errorf("run %d: expected 25 steps, got %d", i, r.StepsTaken)
		}
		final := r.Final()
		if !final.JointPositions().IsValid() {
			t.Errorf("run %d: non-finite joint positions", i)
		}
	}
	if results[0].Actions[3] == results[1].Actions[3] {
		t.Error("members with different gait frequencies should act differently")
	}
}

func TestEnsembleFactoryError(t *testing.T) {
	factory := func(ctx context.Context, run int) (*Simulator, error) {
		if run == 1 {
			return nil, dynamo.Configf("bad member")
		}
		return New(&echoStepper{}, rampPolicy{}), nil
	}
	_, err := NewEnsemble(factory, 2).Run(context.Background(), Config{Steps: 3, Dt: 0.02})
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
