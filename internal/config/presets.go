package config

import "sort"

func preset(mutate func(c *Config)) *Config {
	c := DefaultConfig()
	mutate(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"go1": {
		"default": DefaultConfig(),
		"fast": preset(func(c *Config) {
			c.SimHz, c.ControlHz = 400, 100
		}),
		"torque": preset(func(c *Config) {
			c.Actuation = "torque"
		}),
		"trot": preset(func(c *Config) {
			c.Policy = "trot"
			c.Command = [3]float64{0.5, 0, 0}
			c.Duration = 20
		}),
		"exact": preset(func(c *Config) {
			c.Projection = "exact"
			c.Integrator = "rk4"
		}),
		"tilted": preset(func(c *Config) {
			c.Robot.Orientation = [3]float64{0.1, -0.05, 0}
		}),
	},
}

// GetPreset returns a copy of a preset, or nil.
func GetPreset(robot, preset string) *Config {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	cfg, ok := robotPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(robot string) []string {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(robotPresets))
	for name := range robotPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListRobots() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
