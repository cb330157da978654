package physics

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// JointSpec describes one joint of a robot description.
type JointSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Lower and Upper bound the joint position; equal values mean unlimited.
	Lower   float64 `yaml:"lower"`
	Upper   float64 `yaml:"upper"`
	Inertia float64 `yaml:"inertia"`
	Damping float64 `yaml:"damping"`
	// Load is a gravity torque at |g| = 9.81, applied as -Load*cos(q).
	Load float64 `yaml:"load"`
}

// Description is a joint-space robot model the sandbox can load.
type Description struct {
	Name   string      `yaml:"name"`
	Joints []JointSpec `yaml:"joints"`
	// TiltGain couples thigh asymmetry to base roll and pitch.
	TiltGain float64 `yaml:"tilt_gain"`
}

func (d *Description) validate() error {
	if d.Name == "" {
		return dynamo.Configf("robot description has no name")
	}
	seen := make(map[string]bool, len(d.Joints))
	for i, j := range d.Joints {
		if j.Name == "" {
			return dynamo.Configf("robot %s: joint %d has no name", d.Name, i)
		}
		if seen[j.Name] {
			return dynamo.Configf("robot %s: joint %s listed twice", d.Name, j.Name)
		}
		seen[j.Name] = true
		jt, ok := ParseJointType(j.Type)
		if !ok {
			return dynamo.Configf("robot %s: joint %s has unknown type %q", d.Name, j.Name, j.Type)
		}
		if jt.Actuated() && j.Inertia <= 0 {
			return dynamo.Configf("robot %s: joint %s needs positive inertia", d.Name, j.Name)
		}
		if j.Upper < j.Lower {
			return dynamo.Configf("robot %s: joint %s limits inverted", d.Name, j.Name)
		}
	}
	return nil
}

func (d *Description) clone() *Description {
	c := *d
	c.Joints = append([]JointSpec(nil), d.Joints...)
	return &c
}

// LoadDescription reads a yaml robot description from disk.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(dynamo.ErrConfiguration, "read robot description %s: %v", path, err)
	}
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(dynamo.ErrConfiguration, "parse robot description %s: %v", path, err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func isDescriptionFile(desc string) bool {
	return strings.HasSuffix(desc, ".yaml") || strings.HasSuffix(desc, ".yml")
}

func leg(legName string) []JointSpec {
	return []JointSpec{
		{Name: legName + "_hip_joint", Type: "revolute", Lower: -0.863, Upper: 0.863, Inertia: 0.02, Damping: 0.1},
		{Name: legName + "_thigh_joint", Type: "revolute", Lower: -0.686, Upper: 4.501, Inertia: 0.03, Damping: 0.1, Load: 0.5},
		{Name: legName + "_calf_joint", Type: "revolute", Lower: -2.818, Upper: -0.888, Inertia: 0.01, Damping: 0.05, Load: 0.2},
	}
}

// Go1Description is the built-in Unitree Go1 joint model. The IMU mount is a
// fixed joint enumerated before the legs.
func Go1Description() *Description {
	d := &Description{
		Name:     "go1",
		TiltGain: 0.25,
		Joints:   []JointSpec{{Name: "imu_joint", Type: "fixed"}},
	}
	for _, l := range []string{"FR", "FL", "RR", "RL"} {
		d.Joints = append(d.Joints, leg(l)...)
	}
	return d
}

// PlaneDescription is a static ground body with no joints.
func PlaneDescription() *Description {
	return &Description{Name: "plane"}
}
