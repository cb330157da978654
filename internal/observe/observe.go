// Package observe assembles the policy observation from engine state.
package observe

import (
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/physics"
)

// ProjectGravity expresses the world gravity vector g in the body frame of
// orientation q, using the elementwise form the policies were trained on:
//
//	a = g(2w²−1), b = 2w(v×g), c_i = v_i²·g_i, result a − b + c
//
// For rotations about a horizontal axis this matches RotateInverse; for
// rotations with a yaw component it does not preserve |g|.
func ProjectGravity(q dynamo.Quaternion, g dynamo.Vec3) dynamo.Vec3 {
	w := q.W
	v := dynamo.Vec3{q.X, q.Y, q.Z}

	s := 2*w*w - 1
	cross := dynamo.Vec3{
		v[1]*g[2] - v[2]*g[1],
		v[2]*g[0] - v[0]*g[2],
		v[0]*g[1] - v[1]*g[0],
	}

	var out dynamo.Vec3
	for i := range out {
		a := g[i] * s
		b := 2 * w * cross[i]
		c := v[i] * v[i] * g[i]
		out[i] = a - b + c
	}
	return out
}

// RotateInverse rotates v by the inverse of unit quaternion q (q* v q).
func RotateInverse(q dynamo.Quaternion, v dynamo.Vec3) dynamo.Vec3 {
	qn := quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	r := quat.Mul(quat.Mul(quat.Conj(qn), p), qn)
	return dynamo.Vec3{r.Imag, r.Jmag, r.Kmag}
}

// Projection selects how gravity is brought into the body frame.
type Projection func(q dynamo.Quaternion, g dynamo.Vec3) dynamo.Vec3

// ParseProjection maps a config value to a Projection.
func ParseProjection(name string) (Projection, error) {
	switch name {
	case "", "policy":
		return ProjectGravity, nil
	case "exact":
		return RotateInverse, nil
	}
	return nil, dynamo.Configf("unknown gravity projection %q", name)
}

// CommandReader yields the current velocity command.
type CommandReader interface {
	Get() dynamo.Command
}

// Builder reads engine state and lays out observations. It has no side
// effects on the engine.
type Builder struct {
	engine     physics.Engine
	robot      physics.RobotHandle
	indices    []int
	toExternal joints.Remapper
	gravity    dynamo.Vec3
	project    Projection
	command    CommandReader
}

// NewBuilder reads joints indices (native order) from engine and remaps
// them from native to external for the observation.
func NewBuilder(engine physics.Engine, robot physics.RobotHandle, indices []int, native, external joints.IndexMap,
	gravity dynamo.Vec3, project Projection, command CommandReader) *Builder {
	if project == nil {
		project = ProjectGravity
	}
	return &Builder{
		engine:     engine,
		robot:      robot,
		indices:    append([]int(nil), indices...),
		toExternal: joints.NewRemapper(native, external),
		gravity:    gravity,
		project:    project,
		command:    command,
	}
}

// Build lays out gravity, command, joint positions and velocities (external
// order) and lastAction, which the caller passes in external order.
func (b *Builder) Build(lastAction dynamo.JointVector) (dynamo.Observation, error) {
	var obs dynamo.Observation

	pose, err := b.engine.BasePose(b.robot)
	if err != nil {
		return obs, err
	}
	states, err := b.engine.JointStates(b.robot, b.indices)
	if err != nil {
		return obs, err
	}
	if len(states) != dynamo.JointCount {
		return obs, dynamo.Protocolf("engine returned %d joint states, want %d", len(states), dynamo.JointCount)
	}

	var q, dq dynamo.JointVector
	for i, s := range states {
		q[i], dq[i] = s.Position, s.Velocity
	}
	q, dq = b.toExternal.Apply(q), b.toExternal.Apply(dq)

	g := b.project(pose.Orientation, b.gravity)
	cmd := b.command.Get()

	copy(obs[dynamo.ObsGravity:], g[:])
	copy(obs[dynamo.ObsCommand:], cmd[:])
	copy(obs[dynamo.ObsJointPos:], q[:])
	copy(obs[dynamo.ObsJointVel:], dq[:])
	copy(obs[dynamo.ObsLastAction:], lastAction[:])
	return obs, nil
}
