package physics

import (
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/integrators"
)

// Default motor gains, matching the usual position-control defaults of
// rigid-body engines.
const (
	DefaultPositionGain = 0.1
	DefaultVelocityGain = 1.0
)

type body struct {
	desc  *Description
	specs []JointSpec
	info  []JointInfo
	model *JointModel
	state dynamo.State

	applied  []float64
	reaction []float64
	sensors  []bool
	dynamics map[int]JointDynamics

	pos      dynamo.Vec3
	orn      dynamo.Quaternion
	override *dynamo.Quaternion

	front, rear, left, right []int
	tiltRef                  *[2]float64
}

func (b *body) joints() int { return len(b.info) }

func (b *body) checkJoint(j int) error {
	if j < 0 || j >= b.joints() {
		return errors.Wrapf(dynamo.ErrProtocol, "robot %s has no joint %d", b.desc.Name, j)
	}
	return nil
}

// Call is one recorded engine request.
type Call struct {
	Op     string
	Robot  RobotHandle
	Joints []int
	Values []float64
}

// Sandbox is an in-process reference Engine. It integrates joint-space
// dynamics under PD position control or direct torques; there are no
// contacts and the base does not move except for a small tilt driven by
// thigh asymmetry.
type Sandbox struct {
	mu sync.Mutex

	dt      float64
	gravity dynamo.Vec3
	integ   dynamo.Integrator
	descs   map[string]*Description
	bodies  []*body

	steps     int
	time      float64
	failAfter int

	record bool
	calls  []Call
}

type SandboxOption func(*Sandbox)

func WithIntegrator(integ dynamo.Integrator) SandboxOption {
	return func(s *Sandbox) { s.integ = integ }
}

// WithDescription registers d under its name, replacing any built-in of the
// same name.
func WithDescription(d *Description) SandboxOption {
	return func(s *Sandbox) { s.descs[d.Name] = d.clone() }
}

// WithCallLog records every request; see Calls.
func WithCallLog() SandboxOption {
	return func(s *Sandbox) { s.record = true }
}

func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		dt:        1.0 / 240.0,
		integ:     integrators.NewSemiImplicit(),
		failAfter: -1,
		descs: map[string]*Description{
			"go1":   Go1Description(),
			"plane": PlaneDescription(),
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sandbox) log(op string, h RobotHandle, joints []int, values []float64) {
	if !s.record {
		return
	}
	s.calls = append(s.calls, Call{
		Op:     op,
		Robot:  h,
		Joints: append([]int(nil), joints...),
		Values: append([]float64(nil), values...),
	})
}

func (s *Sandbox) robot(h RobotHandle) (*body, error) {
	if h < 0 || int(h) >= len(s.bodies) {
		return nil, errors.Wrapf(dynamo.ErrProtocol, "unknown robot handle %d", h)
	}
	return s.bodies[h], nil
}

func (s *Sandbox) SetTimeStep(dt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !(dt > 0) || math.IsInf(dt, 0) {
		return errors.Wrapf(dynamo.ErrConfiguration, "time step %v", dt)
	}
	s.dt = dt
	s.log("time_step", -1, nil, []float64{dt})
	return nil
}

func (s *Sandbox) SetGravity(g dynamo.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gravity = g
	for _, b := range s.bodies {
		b.model.GravityScale = g.Norm() / StandardGravity
	}
	s.log("gravity", -1, nil, g[:])
	return nil
}

func (s *Sandbox) LoadRobot(desc string, pos dynamo.Vec3, orn dynamo.Quaternion, flags LoadFlags) (RobotHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.descs[desc]
	if !ok {
		if !isDescriptionFile(desc) {
			return -1, errors.Wrapf(dynamo.ErrConfiguration, "unknown robot description %q", desc)
		}
		var err error
		if d, err = LoadDescription(desc); err != nil {
			return -1, err
		}
	}

	b := &body{
		desc:     d,
		pos:      pos,
		orn:      orn.Normalize(),
		dynamics: make(map[int]JointDynamics),
	}
	for _, js := range d.Joints {
		jt, _ := ParseJointType(js.Type)
		if jt == Fixed && flags.Has(MergeFixedLinks) {
			continue
		}
		b.info = append(b.info, JointInfo{Index: len(b.info), Name: js.Name, Type: jt})
		b.specs = append(b.specs, js)
	}

	n := b.joints()
	b.model = NewJointModel(b.specs)
	b.model.GravityScale = s.gravity.Norm() / StandardGravity
	b.state = make(dynamo.State, 2*n)
	b.applied = make([]float64, n)
	b.reaction = make([]float64, n)
	b.sensors = make([]bool, n)

	for _, ji := range b.info {
		if !strings.Contains(ji.Name, "thigh") {
			continue
		}
		switch {
		case strings.HasPrefix(ji.Name, "FR"):
			b.front, b.right = append(b.front, ji.Index), append(b.right, ji.Index)
		case strings.HasPrefix(ji.Name, "FL"):
			b.front, b.left = append(b.front, ji.Index), append(b.left, ji.Index)
		case strings.HasPrefix(ji.Name, "RR"):
			b.rear, b.right = append(b.rear, ji.Index), append(b.right, ji.Index)
		case strings.HasPrefix(ji.Name, "RL"):
			b.rear, b.left = append(b.rear, ji.Index), append(b.left, ji.Index)
		}
	}

	s.bodies = append(s.bodies, b)
	h := RobotHandle(len(s.bodies) - 1)
	s.log("load", h, nil, []float64{pos[0], pos[1], pos[2], float64(flags)})
	return h, nil
}

func (s *Sandbox) SetJointDynamics(h RobotHandle, joint int, d JointDynamics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}
	if joint != BaseLink {
		if err := b.checkJoint(joint); err != nil {
			return err
		}
		if b.model.Inertia[joint] > 0 {
			b.model.Damping[joint] = b.specs[joint].Damping + d.AngularDamping
		}
	}
	b.dynamics[joint] = d
	s.log("dynamics", h, []int{joint}, []float64{d.LinearDamping, d.AngularDamping, d.LateralFriction, d.RollingFriction})
	return nil
}

// Dynamics returns what SetJointDynamics last stored for joint.
func (s *Sandbox) Dynamics(h RobotHandle, joint int) (JointDynamics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return JointDynamics{}, false
	}
	d, ok := b.dynamics[joint]
	return d, ok
}

func (s *Sandbox) EnableTorqueSensor(h RobotHandle, joint int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}
	if err := b.checkJoint(joint); err != nil {
		return err
	}
	b.sensors[joint] = true
	s.log("sensor", h, []int{joint}, nil)
	return nil
}

func (s *Sandbox) EnumerateJoints(h RobotHandle) ([]JointInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return nil, err
	}
	return append([]JointInfo(nil), b.info...), nil
}

func (s *Sandbox) ResetJointState(h RobotHandle, joint int, q float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}
	if err := b.checkJoint(joint); err != nil {
		return err
	}
	n := b.joints()
	b.state[joint] = q
	b.state[n+joint] = 0
	b.tiltRef = nil
	s.log("reset", h, []int{joint}, []float64{q})
	return nil
}

func (s *Sandbox) SetJointPositionTargets(h RobotHandle, cmd PositionTargets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}

	n := len(cmd.Joints)
	if len(cmd.Positions) != n {
		return errors.Wrapf(dynamo.ErrProtocol, "position targets: have(%d) want(%d)", len(cmd.Positions), n)
	}
	for _, opt := range [][]float64{cmd.Velocities, cmd.Forces, cmd.PositionGains, cmd.VelocityGains} {
		if opt != nil && len(opt) != n {
			return errors.Wrapf(dynamo.ErrProtocol, "position target field: have(%d) want(%d)", len(opt), n)
		}
	}

	pick := func(vals []float64, i int, def float64) float64 {
		if vals == nil {
			return def
		}
		return vals[i]
	}
	for i, j := range cmd.Joints {
		if err := b.checkJoint(j); err != nil {
			return err
		}
		b.model.Motors[j] = Motor{
			Mode:           MotorPosition,
			Target:         cmd.Positions[i],
			TargetVelocity: pick(cmd.Velocities, i, 0),
			MaxForce:       pick(cmd.Forces, i, math.Inf(1)),
			Kp:             pick(cmd.PositionGains, i, DefaultPositionGain),
			Kd:             pick(cmd.VelocityGains, i, DefaultVelocityGain),
		}
	}
	s.log("targets", h, cmd.Joints, cmd.Positions)
	return nil
}

func (s *Sandbox) SetJointTorques(h RobotHandle, joints []int, torques []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}
	if len(joints) != len(torques) {
		return errors.Wrapf(dynamo.ErrProtocol, "torques: have(%d) want(%d)", len(torques), len(joints))
	}
	for i, j := range joints {
		if err := b.checkJoint(j); err != nil {
			return err
		}
		b.model.Motors[j] = Motor{Mode: MotorTorque, Torque: torques[i]}
	}
	s.log("torques", h, joints, torques)
	return nil
}

// torques samples every motor at the current state.
func (b *body) torques() []float64 {
	n := b.joints()
	u := make([]float64, n)
	for i := 0; i < n; i++ {
		if b.model.Inertia[i] > 0 {
			u[i] = b.model.MotorTorque(i, b.state[i], b.state[n+i])
		}
	}
	return u
}

func (b *body) enforceLimits(x dynamo.State) {
	n := b.joints()
	for i, js := range b.specs {
		if js.Upper <= js.Lower {
			continue
		}
		if x[i] < js.Lower {
			x[i] = js.Lower
			x[n+i] = math.Max(x[n+i], 0)
		} else if x[i] > js.Upper {
			x[i] = js.Upper
			x[n+i] = math.Min(x[n+i], 0)
		}
	}
}

func (s *Sandbox) StepSimulation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAfter == 0 {
		return errors.Wrapf(dynamo.ErrStepService, "sandbox: injected failure at step %d", s.steps)
	}
	if s.failAfter > 0 {
		s.failAfter--
	}

	next := make([]dynamo.State, len(s.bodies))
	applied := make([][]float64, len(s.bodies))
	for k, b := range s.bodies {
		if b.joints() == 0 {
			continue
		}
		b.model.Dt = s.dt
		u := b.torques()
		x := s.integ.Step(b.model, b.state, nil, s.time, s.dt)
		if !x.IsValid() {
			return errors.Wrapf(dynamo.ErrStepService, "sandbox: robot %s diverged at step %d", b.desc.Name, s.steps)
		}
		b.enforceLimits(x)
		next[k], applied[k] = x, u
	}

	for k, b := range s.bodies {
		if next[k] == nil {
			continue
		}
		n := b.joints()
		for i := 0; i < n; i++ {
			b.applied[i] = applied[k][i]
			b.reaction[i] = applied[k][i] - b.model.Inertia[i]*(next[k][n+i]-b.state[n+i])/s.dt
		}
		b.state = next[k]
		if b.tiltRef == nil {
			p, r := b.tiltSignal()
			b.tiltRef = &[2]float64{p, r}
		}
	}

	s.steps++
	s.time += s.dt
	s.log("step", -1, nil, nil)
	return nil
}

func (s *Sandbox) JointStates(h RobotHandle, joints []int) ([]JointState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return nil, err
	}
	n := b.joints()
	out := make([]JointState, len(joints))
	for i, j := range joints {
		if err := b.checkJoint(j); err != nil {
			return nil, err
		}
		out[i] = JointState{
			Position:      b.state[j],
			Velocity:      b.state[n+j],
			AppliedTorque: b.applied[j],
		}
		if b.sensors[j] {
			out[i].ReactionTorque = b.reaction[j]
		}
	}
	return out, nil
}

func mean(x dynamo.State, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += x[i]
	}
	return sum / float64(len(idx))
}

// tiltSignal returns the raw pitch and roll drivers: front minus rear and
// left minus right mean thigh angle.
func (b *body) tiltSignal() (pitch, roll float64) {
	return mean(b.state, b.front) - mean(b.state, b.rear),
		mean(b.state, b.left) - mean(b.state, b.right)
}

func toQuat(q dynamo.Quaternion) quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromQuat(n quat.Number) dynamo.Quaternion {
	return dynamo.Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

func (s *Sandbox) BasePose(h RobotHandle) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return Pose{}, err
	}
	if b.override != nil {
		return Pose{Position: b.pos, Orientation: *b.override}, nil
	}

	orn := b.orn
	if b.tiltRef != nil && b.desc.TiltGain != 0 {
		p, r := b.tiltSignal()
		tilt := dynamo.QuaternionFromEuler(
			b.desc.TiltGain*(r-b.tiltRef[1]),
			b.desc.TiltGain*(p-b.tiltRef[0]),
			0,
		)
		orn = fromQuat(quat.Mul(toQuat(b.orn), toQuat(tilt))).Normalize()
	}
	return Pose{Position: b.pos, Orientation: orn}, nil
}

// SetBaseOrientation pins the reported base orientation until
// ClearBaseOrientation.
func (s *Sandbox) SetBaseOrientation(h RobotHandle, q dynamo.Quaternion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.robot(h)
	if err != nil {
		return err
	}
	b.override = &q
	return nil
}

func (s *Sandbox) ClearBaseOrientation(h RobotHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, err := s.robot(h); err == nil {
		b.override = nil
	}
}

// FailAfter makes StepSimulation fail once n more steps have succeeded.
// A negative n disables injection.
func (s *Sandbox) FailAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

func (s *Sandbox) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

func (s *Sandbox) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

func (s *Sandbox) TimeStep() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dt
}

// Calls returns a copy of the call log. Empty unless built WithCallLog.
func (s *Sandbox) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Sandbox) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// CountCalls counts recorded calls with the given op.
func (s *Sandbox) CountCalls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, call := range s.calls {
		if call.Op == op {
			c++
		}
	}
	return c
}

var _ Engine = (*Sandbox)(nil)
