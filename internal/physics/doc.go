// Package physics is the stepping-service boundary of the control loop.
//
// [Engine] lists the requests the loop makes: configure the step and
// gravity, load a robot, enumerate and reset its joints, command them and
// advance time. Faults come back wrapped around the sentinels in dynamo
// ([dynamo.ErrConfiguration] for bad descriptions, [dynamo.ErrProtocol] for
// bad handles or indices, [dynamo.ErrStepService] when stepping fails).
//
// [Sandbox] is the in-process reference engine. It integrates a
// [JointModel] per robot with any [dynamo.Integrator]:
//
//	sb := physics.NewSandbox(physics.WithIntegrator(integrators.NewRK4()))
//	h, err := sb.LoadRobot("go1", dynamo.Vec3{0, 0, 0.4}, dynamo.IdentityQuaternion, physics.MergeFixedLinks)
//
// Besides the built-in "go1" and "plane" descriptions it loads yaml
// descriptions from disk (see [Description]).
package physics
