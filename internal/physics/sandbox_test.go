package physics

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/integrators"
)

func loadGo1(t *testing.T, s *Sandbox, flags LoadFlags) RobotHandle {
	t.Helper()
	h, err := s.LoadRobot("go1", dynamo.Vec3{0, 0, 0.4}, dynamo.IdentityQuaternion, flags)
	require.NoError(t, err)
	return h
}

func TestSandbox_Enumeration(t *testing.T) {
	s := NewSandbox()

	full := loadGo1(t, s, 0)
	info, err := s.EnumerateJoints(full)
	require.NoError(t, err)
	require.Len(t, info, 13)
	assert.Equal(t, Fixed, info[0].Type)
	assert.False(t, info[0].Type.Actuated())
	assert.Equal(t, "FR_hip_joint", info[1].Name)
	assert.Equal(t, 1, info[1].Index)

	merged := loadGo1(t, s, MergeFixedLinks|SelfCollision)
	info, err = s.EnumerateJoints(merged)
	require.NoError(t, err)
	require.Len(t, info, 12)
	for i, ji := range info {
		assert.Equal(t, i, ji.Index)
		assert.True(t, ji.Type.Actuated(), ji.Name)
	}
	assert.Equal(t, "RL_calf_joint", info[11].Name)
}

func TestSandbox_UnknownDescription(t *testing.T) {
	s := NewSandbox()
	_, err := s.LoadRobot("spot", dynamo.Vec3{}, dynamo.IdentityQuaternion, 0)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = s.LoadRobot(filepath.Join(t.TempDir(), "missing.yaml"), dynamo.Vec3{}, dynamo.IdentityQuaternion, 0)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestSandbox_DescriptionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arm.yaml")
	body := `name: arm
joints:
  - name: base_joint
    type: fixed
  - name: shoulder_joint
    type: revolute
    inertia: 0.05
    damping: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := NewSandbox()
	h, err := s.LoadRobot(path, dynamo.Vec3{}, dynamo.IdentityQuaternion, MergeFixedLinks)
	require.NoError(t, err)
	info, err := s.EnumerateJoints(h)
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, "shoulder_joint", info[0].Name)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\njoints:\n  - name: j\n    type: hinge\n"), 0o644))
	_, err = s.LoadRobot(bad, dynamo.Vec3{}, dynamo.IdentityQuaternion, 0)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestSandbox_HoldsTargetExactly(t *testing.T) {
	s := NewSandbox()
	require.NoError(t, s.SetTimeStep(0.005))
	h := loadGo1(t, s, MergeFixedLinks)

	require.NoError(t, s.ResetJointState(h, 0, 0.5))
	require.NoError(t, s.SetJointPositionTargets(h, PositionTargets{
		Joints:    []int{0},
		Positions: []float64{0.5},
	}))
	for i := 0; i < 100; i++ {
		require.NoError(t, s.StepSimulation())
	}

	st, err := s.JointStates(h, []int{0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, st[0].Position)
	assert.Equal(t, 0.0, st[0].Velocity)
	assert.Equal(t, 100, s.Steps())
	assert.InDelta(t, 0.5, s.Time(), 1e-12)
}

func TestSandbox_ConvergesToTarget(t *testing.T) {
	for name, integ := range map[string]dynamo.Integrator{
		"semi_implicit": integrators.NewSemiImplicit(),
		"verlet":        integrators.NewVerlet(),
		"rk4":           integrators.NewRK4(),
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSandbox(WithIntegrator(integ))
			require.NoError(t, s.SetTimeStep(0.005))
			require.NoError(t, s.SetGravity(dynamo.Vec3{0, 0, -9.81}))
			h := loadGo1(t, s, MergeFixedLinks)

			cmd := PositionTargets{
				Joints:        []int{0},
				Positions:     []float64{0.3},
				Velocities:    []float64{0},
				Forces:        []float64{50},
				PositionGains: []float64{0.1},
				VelocityGains: []float64{0.0001},
			}
			for i := 0; i < 2000; i++ {
				require.NoError(t, s.SetJointPositionTargets(h, cmd))
				require.NoError(t, s.StepSimulation())
			}
			st, err := s.JointStates(h, []int{0})
			require.NoError(t, err)
			assert.InDelta(t, 0.3, st[0].Position, 1e-3)
			assert.InDelta(t, 0.0, st[0].Velocity, 1e-2)
		})
	}
}

func TestSandbox_ForceLimit(t *testing.T) {
	s := NewSandbox()
	require.NoError(t, s.SetTimeStep(0.005))
	h := loadGo1(t, s, MergeFixedLinks)

	require.NoError(t, s.SetJointPositionTargets(h, PositionTargets{
		Joints:    []int{0, 3},
		Positions: []float64{0.8, -0.8},
		Forces:    []float64{1, 1},
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.StepSimulation())
		st, err := s.JointStates(h, []int{0, 3})
		require.NoError(t, err)
		for _, js := range st {
			assert.LessOrEqual(t, math.Abs(js.AppliedTorque), 1.0)
		}
	}
}

func TestSandbox_InjectedFailure(t *testing.T) {
	s := NewSandbox()
	h := loadGo1(t, s, MergeFixedLinks)
	require.NoError(t, s.SetJointTorques(h, []int{1}, []float64{2}))

	s.FailAfter(2)
	require.NoError(t, s.StepSimulation())
	require.NoError(t, s.StepSimulation())
	before, err := s.JointStates(h, []int{1})
	require.NoError(t, err)

	err = s.StepSimulation()
	assert.ErrorIs(t, err, dynamo.ErrStepService)
	assert.Equal(t, 2, s.Steps())

	after, err := s.JointStates(h, []int{1})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	s.FailAfter(-1)
	assert.NoError(t, s.StepSimulation())
}

func TestSandbox_Divergence(t *testing.T) {
	s := NewSandbox()
	h := loadGo1(t, s, MergeFixedLinks)
	require.NoError(t, s.SetJointTorques(h, []int{4}, []float64{math.MaxFloat64}))

	err := s.StepSimulation()
	assert.ErrorIs(t, err, dynamo.ErrStepService)

	st, err := s.JointStates(h, []int{4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, st[0].Position)
	assert.Equal(t, 0, s.Steps())
}

func TestSandbox_RejectsBadRequests(t *testing.T) {
	s := NewSandbox()
	h := loadGo1(t, s, MergeFixedLinks)

	_, err := s.JointStates(RobotHandle(9), []int{0})
	assert.ErrorIs(t, err, dynamo.ErrProtocol)

	assert.ErrorIs(t, s.ResetJointState(h, 12, 0), dynamo.ErrProtocol)
	assert.ErrorIs(t, s.SetJointTorques(h, []int{0, 1}, []float64{1}), dynamo.ErrProtocol)
	assert.ErrorIs(t, s.SetJointPositionTargets(h, PositionTargets{
		Joints:    []int{0, 1},
		Positions: []float64{0, 0},
		Forces:    []float64{50},
	}), dynamo.ErrProtocol)
	assert.ErrorIs(t, s.SetTimeStep(0), dynamo.ErrConfiguration)
}

func TestSandbox_BaseOrientation(t *testing.T) {
	s := NewSandbox()
	require.NoError(t, s.SetTimeStep(0.005))
	h := loadGo1(t, s, MergeFixedLinks)

	pose, err := s.BasePose(h)
	require.NoError(t, err)
	assert.Equal(t, dynamo.IdentityQuaternion, pose.Orientation)
	assert.Equal(t, dynamo.Vec3{0, 0, 0.4}, pose.Position)

	tilted := dynamo.QuaternionFromEuler(0.2, 0, 0)
	require.NoError(t, s.SetBaseOrientation(h, tilted))
	pose, err = s.BasePose(h)
	require.NoError(t, err)
	assert.Equal(t, tilted, pose.Orientation)

	s.ClearBaseOrientation(h)
	pose, err = s.BasePose(h)
	require.NoError(t, err)
	assert.Equal(t, dynamo.IdentityQuaternion, pose.Orientation)
}

func TestSandbox_TiltFollowsThighs(t *testing.T) {
	s := NewSandbox()
	require.NoError(t, s.SetTimeStep(0.005))
	h := loadGo1(t, s, MergeFixedLinks)

	require.NoError(t, s.StepSimulation())
	pose, err := s.BasePose(h)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pose.Orientation.W, 1e-12)

	// Front thighs are joints 1 and 4 in description order.
	cmd := PositionTargets{Joints: []int{1, 4}, Positions: []float64{0.6, 0.6}, Forces: []float64{50, 50}}
	for i := 0; i < 400; i++ {
		require.NoError(t, s.SetJointPositionTargets(h, cmd))
		require.NoError(t, s.StepSimulation())
	}
	pose, err = s.BasePose(h)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(pose.Orientation.Y), 1e-3, "pitch should follow the front legs")
	assert.InDelta(t, 0.0, pose.Orientation.X, 1e-9, "symmetric motion should not roll")
	assert.InDelta(t, 1.0, pose.Orientation.Norm(), 1e-12)
}

func TestSandbox_TorqueSensor(t *testing.T) {
	s := NewSandbox()
	require.NoError(t, s.SetTimeStep(0.005))
	require.NoError(t, s.SetGravity(dynamo.Vec3{0, 0, -9.81}))
	h := loadGo1(t, s, MergeFixedLinks)
	require.NoError(t, s.EnableTorqueSensor(h, 1))

	require.NoError(t, s.SetJointTorques(h, []int{1, 2}, []float64{1, 1}))
	require.NoError(t, s.StepSimulation())

	st, err := s.JointStates(h, []int{1, 2})
	require.NoError(t, err)
	assert.NotZero(t, st[0].ReactionTorque)
	assert.Zero(t, st[1].ReactionTorque)
	assert.Equal(t, 1.0, st[1].AppliedTorque)
}

func TestSandbox_CallLog(t *testing.T) {
	s := NewSandbox(WithCallLog())
	plane, err := s.LoadRobot("plane", dynamo.Vec3{}, dynamo.IdentityQuaternion, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetJointDynamics(plane, BaseLink, JointDynamics{LateralFriction: 1, RollingFriction: 1}))

	h := loadGo1(t, s, MergeFixedLinks)
	require.NoError(t, s.SetJointDynamics(h, 0, JointDynamics{LateralFriction: 0.8, RollingFriction: 0.6}))
	require.NoError(t, s.StepSimulation())

	calls := s.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, "load", calls[0].Op)
	assert.Equal(t, "dynamics", calls[1].Op)
	assert.Equal(t, "step", calls[4].Op)
	assert.Equal(t, 1, s.CountCalls("step"))

	d, ok := s.Dynamics(h, 0)
	require.True(t, ok)
	assert.Equal(t, 0.6, d.RollingFriction)

	s.ResetCalls()
	assert.Empty(t, s.Calls())
}

func TestJointModel_FixedJointFrozen(t *testing.T) {
	m := NewJointModel(Go1Description().Joints)
	require.Equal(t, 26, m.StateDim())

	x := make(dynamo.State, m.StateDim())
	x[13] = 1 // velocity of the fixed IMU joint
	u := make(dynamo.Control, m.ControlDim())
	u[0] = 5
	dx := m.Derive(x, u, 0)
	assert.Zero(t, dx[0])
	assert.Zero(t, dx[13])

	assert.InDelta(t, 0, m.Energy(x), 1e-12)
}
