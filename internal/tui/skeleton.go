package tui

import (
	"math"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
)

// Go1 link lengths in metres.
const (
	thighLength  = 0.213
	calfLength   = 0.213
	bodyHalf     = 0.1881
	viewHalfSpan = 0.45
	viewTop      = 0.15
	viewBottom   = -0.45
)

type point struct{ X, Z float64 }

// Leg is one leg's side-view joints in body coordinates, x forward, z up.
type Leg struct {
	Name            string
	Hip, Knee, Foot point
}

var external = joints.MustIndexMap(joints.Go1External)

// Pitch is the body pitch implied by the projected gravity in obs.
func Pitch(obs dynamo.Observation) float64 {
	g := obs.Gravity()
	if g[0] == 0 && g[2] == 0 {
		return 0
	}
	return math.Atan2(g[0], -g[2])
}

// Skeleton solves the planar forward kinematics of every leg from the
// thigh and calf angles in obs, rotated by the body pitch.
func Skeleton(obs dynamo.Observation) []Leg {
	pitch := Pitch(obs)
	rot := func(p point) point {
		s, c := math.Sin(pitch), math.Cos(pitch)
		return point{X: c*p.X + s*p.Z, Z: -s*p.X + c*p.Z}
	}

	q := obs.JointPositions()
	legs := make([]Leg, 0, 4)
	for _, leg := range []string{"FR", "FL", "RR", "RL"} {
		thigh, _ := external.Index(joints.Name(leg + "_thigh_joint"))
		calf, _ := external.Index(joints.Name(leg + "_calf_joint"))

		hx := bodyHalf
		if leg[0] == 'R' {
			hx = -bodyHalf
		}
		hip := point{X: hx}
		th, kn := q[thigh], q[thigh]+q[calf]
		knee := point{X: hip.X - thighLength*math.Sin(th), Z: hip.Z - thighLength*math.Cos(th)}
		foot := point{X: knee.X - calfLength*math.Sin(kn), Z: knee.Z - calfLength*math.Cos(kn)}

		legs = append(legs, Leg{Name: leg, Hip: rot(hip), Knee: rot(knee), Foot: rot(foot)})
	}
	return legs
}

// DrawRobot draws the body line and all legs on c.
func DrawRobot(c *Canvas, obs dynamo.Observation) {
	w, h := float64(c.Width*2-1), float64(c.Height*4-1)
	project := func(p point) (int, int) {
		x := (p.X + viewHalfSpan) / (2 * viewHalfSpan) * w
		y := (viewTop - p.Z) / (viewTop - viewBottom) * h
		return int(math.Round(x)), int(math.Round(y))
	}

	legs := Skeleton(obs)
	front, rear := legs[0].Hip, legs[2].Hip
	x0, y0 := project(front)
	x1, y1 := project(rear)
	c.DrawLine(x0, y0, x1, y1)

	for _, leg := range legs {
		hx, hy := project(leg.Hip)
		kx, ky := project(leg.Knee)
		fx, fy := project(leg.Foot)
		c.DrawLine(hx, hy, kx, ky)
		c.DrawLine(kx, ky, fx, fy)
	}

	ground := legs[0].Foot.Z
	for _, leg := range legs[1:] {
		ground = math.Min(ground, leg.Foot.Z)
	}
	_, gy := project(point{Z: ground})
	for x := 0; x < c.Width*2; x += 2 {
		c.Set(x, gy+1)
	}
}
