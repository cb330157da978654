package config

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
)

const (
	DefaultSimHz         = 200.0
	DefaultControlHz     = 50.0
	DefaultKp            = 0.1
	DefaultKd            = 0.0001
	DefaultForceLimit    = 50.0
	DefaultActionScale   = 0.25
	DefaultSettleSeconds = 5.0
	DefaultDuration      = 10.0
	DefaultBaseHeight    = 0.4
)

type Config struct {
	Robot         RobotConfig             `yaml:"robot"`
	SimHz         float64                 `yaml:"sim_hz"`
	ControlHz     float64                 `yaml:"control_hz"`
	Gravity       [3]float64              `yaml:"gravity"`
	Kp            float64                 `yaml:"kp"`
	Kd            float64                 `yaml:"kd"`
	ForceLimit    float64                 `yaml:"force_limit"`
	ActionScale   float64                 `yaml:"action_scale"`
	SettleSeconds float64                 `yaml:"settle_seconds"`
	InitialPose   map[joints.Name]float64 `yaml:"initial_pose"`
	ExternalOrder map[joints.Name]int     `yaml:"external_order"`
	Actuation     string                  `yaml:"actuation"`
	Projection    string                  `yaml:"projection"`
	Integrator    string                  `yaml:"integrator"`
	Pacing        bool                    `yaml:"pacing"`
	JointDynamics DynamicsConfig          `yaml:"joint_dynamics"`
	Ground        GroundConfig            `yaml:"ground"`

	// Rollout settings used by the CLI.
	Duration float64    `yaml:"duration"`
	Policy   string     `yaml:"policy"`
	Command  [3]float64 `yaml:"command"`
	Trot     TrotConfig `yaml:"trot"`
}

type RobotConfig struct {
	Description string     `yaml:"description"`
	Position    [3]float64 `yaml:"position"`
	// Orientation is roll, pitch, yaw in radians.
	Orientation     [3]float64 `yaml:"orientation"`
	MergeFixedLinks bool       `yaml:"merge_fixed_links"`
	SelfCollision   bool       `yaml:"self_collision"`
}

type DynamicsConfig struct {
	LinearDamping   float64 `yaml:"linear_damping"`
	AngularDamping  float64 `yaml:"angular_damping"`
	LateralFriction float64 `yaml:"lateral_friction"`
	RollingFriction float64 `yaml:"rolling_friction"`
}

type GroundConfig struct {
	Enabled         bool    `yaml:"enabled"`
	LateralFriction float64 `yaml:"lateral_friction"`
	RollingFriction float64 `yaml:"rolling_friction"`
}

type TrotConfig struct {
	Frequency float64 `yaml:"frequency"`
	Thigh     float64 `yaml:"thigh"`
	Calf      float64 `yaml:"calf"`
}

func DefaultConfig() *Config {
	return &Config{
		Robot: RobotConfig{
			Description:     "go1",
			Position:        [3]float64{0, 0, DefaultBaseHeight},
			MergeFixedLinks: true,
			SelfCollision:   true,
		},
		SimHz:         DefaultSimHz,
		ControlHz:     DefaultControlHz,
		Gravity:       [3]float64{0, 0, -9.81},
		Kp:            DefaultKp,
		Kd:            DefaultKd,
		ForceLimit:    DefaultForceLimit,
		ActionScale:   DefaultActionScale,
		SettleSeconds: DefaultSettleSeconds,
		InitialPose:   cloneMap(joints.Go1Standing),
		ExternalOrder: cloneMap(joints.Go1External),
		Actuation:     "position",
		Projection:    "policy",
		Integrator:    "semi_implicit",
		JointDynamics: DynamicsConfig{
			LateralFriction: 0.8,
			RollingFriction: 0.6,
		},
		Ground: GroundConfig{
			Enabled:         true,
			LateralFriction: 1,
			RollingFriction: 1,
		},
		Duration: DefaultDuration,
		Policy:   "zero",
		Trot: TrotConfig{
			Frequency: 2.0,
			Thigh:     0.4,
			Calf:      0.3,
		},
	}
}

func cloneMap[V any](m map[joints.Name]V) map[joints.Name]V {
	if m == nil {
		return nil
	}
	out := make(map[joints.Name]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.InitialPose = cloneMap(c.InitialPose)
	cp.ExternalOrder = cloneMap(c.ExternalOrder)
	return &cp
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// Maps given in the file replace the defaults instead of merging.
	cfg.InitialPose, cfg.ExternalOrder = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, dynamo.Configf("parse %s: %v", path, err)
	}
	if cfg.InitialPose == nil {
		cfg.InitialPose = cloneMap(joints.Go1Standing)
	}
	if cfg.ExternalOrder == nil {
		cfg.ExternalOrder = cloneMap(joints.Go1External)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Repeat is the number of engine sub-steps per control step. The sim rate
// must be an exact positive multiple of the control rate.
func (c *Config) Repeat() (int, error) {
	if !(c.SimHz > 0) || !(c.ControlHz > 0) || math.IsInf(c.SimHz, 0) || math.IsInf(c.ControlHz, 0) {
		return 0, dynamo.Configf("rates sim=%v control=%v must be positive", c.SimHz, c.ControlHz)
	}
	r := c.SimHz / c.ControlHz
	if r < 1 || r != math.Trunc(r) {
		return 0, dynamo.Configf("sim rate %v is not a whole multiple of control rate %v", c.SimHz, c.ControlHz)
	}
	return int(r), nil
}

func (c *Config) SimDt() float64 { return 1.0 / c.SimHz }

func (c *Config) ControlDt() float64 { return 1.0 / c.ControlHz }

// ControlSteps is the number of policy steps a rollout of Duration takes.
func (c *Config) ControlSteps() int {
	return int(math.Round(c.Duration * c.ControlHz))
}

func (c *Config) InitialOrientation() dynamo.Quaternion {
	o := c.Robot.Orientation
	return dynamo.QuaternionFromEuler(o[0], o[1], o[2])
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks everything that does not need the engine.
func (c *Config) Validate() error {
	if _, err := c.Repeat(); err != nil {
		return err
	}
	if c.Robot.Description == "" {
		return dynamo.Configf("robot description is empty")
	}
	finite := func(xs ...float64) bool {
		return dynamo.State(xs).IsValid()
	}
	if !finite(c.Kp, c.Kd, c.ForceLimit, c.ActionScale, c.SettleSeconds) || c.Kp < 0 || c.Kd < 0 {
		return dynamo.Configf("gains kp=%v kd=%v force=%v scale=%v settle=%v", c.Kp, c.Kd, c.ForceLimit, c.ActionScale, c.SettleSeconds)
	}
	if c.ForceLimit <= 0 {
		return dynamo.Configf("force limit %v must be positive", c.ForceLimit)
	}
	if c.SettleSeconds < 0 {
		return dynamo.Configf("settle seconds %v is negative", c.SettleSeconds)
	}
	if !finite(c.Gravity[:]...) {
		return dynamo.Configf("gravity %v is not finite", c.Gravity)
	}
	if !finite(append(c.Robot.Position[:], c.Robot.Orientation[:]...)...) {
		return dynamo.Configf("robot pose is not finite")
	}
	if _, err := joints.NewIndexMap(c.ExternalOrder); err != nil {
		return err
	}
	for n := range c.ExternalOrder {
		v, ok := c.InitialPose[n]
		if !ok {
			return dynamo.Configf("initial pose has no value for %s", n)
		}
		if !finite(v) {
			return dynamo.Configf("initial pose for %s is not finite", n)
		}
	}
	if len(c.InitialPose) != len(c.ExternalOrder) {
		return dynamo.Configf("initial pose names %d joints, external order %d", len(c.InitialPose), len(c.ExternalOrder))
	}
	if !oneOf(c.Actuation, "position", "torque") {
		return dynamo.Configf("unknown actuation %q", c.Actuation)
	}
	if !oneOf(c.Projection, "policy", "exact") {
		return dynamo.Configf("unknown projection %q", c.Projection)
	}
	if !oneOf(c.Integrator, "euler", "semi_implicit", "verlet", "rk4") {
		return dynamo.Configf("unknown integrator %q", c.Integrator)
	}
	return nil
}
