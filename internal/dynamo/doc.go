// Package dynamo provides the core types shared by the quadruped control loop.
//
// The package defines the fixed-size vectors exchanged between components and
// the interfaces used by the reference stepping service:
//
//   - [JointVector]: one value per actuated joint (12 for a quadruped)
//   - [Observation]: the 42-element vector handed to the policy
//   - [Quaternion], [Vec3], [Command]: orientation and velocity command
//   - [System], [Integrator]: continuous dynamics for the reference engine
//   - [Metric], [Observer]: per-control-step hooks
//
// # Observation Layout
//
//	[0:3]   projected gravity (body frame)
//	[3:6]   velocity command (vx, vy, yaw rate)
//	[6:18]  joint positions, external ordering
//	[18:30] joint velocities, external ordering
//	[30:42] last action, external ordering
//
// # Errors
//
// Faults are classified with the sentinels [ErrConfiguration], [ErrProtocol]
// and [ErrStepService]; test them with errors.Is.
package dynamo
