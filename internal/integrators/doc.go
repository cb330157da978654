// Package integrators advances a [dynamo.System] by one fixed timestep.
//
// The reference engine runs joints as second-order systems laid out as
// [positions..., velocities...]; Verlet and SemiImplicit rely on that split.
package integrators
