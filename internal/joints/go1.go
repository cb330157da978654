package joints

import "strings"

// Reference robot (Unitree Go1) joint names.
const (
	FRHip   Name = "FR_hip_joint"
	FLHip   Name = "FL_hip_joint"
	RRHip   Name = "RR_hip_joint"
	RLHip   Name = "RL_hip_joint"
	FRThigh Name = "FR_thigh_joint"
	FLThigh Name = "FL_thigh_joint"
	RRThigh Name = "RR_thigh_joint"
	RLThigh Name = "RL_thigh_joint"
	FRCalf  Name = "FR_calf_joint"
	FLCalf  Name = "FL_calf_joint"
	RRCalf  Name = "RR_calf_joint"
	RLCalf  Name = "RL_calf_joint"
)

// Go1External is the joint ordering the locomotion policy was trained with:
// all hips, then all thighs, then all calves, left before right.
var Go1External = map[Name]int{
	FLHip:   0,
	FRHip:   1,
	RLHip:   2,
	RRHip:   3,
	FLThigh: 4,
	FRThigh: 5,
	RLThigh: 6,
	RRThigh: 7,
	FLCalf:  8,
	FRCalf:  9,
	RLCalf:  10,
	RRCalf:  11,
}

// Go1Standing is the settle pose in radians.
var Go1Standing = map[Name]float64{
	FRHip:   -0.1,
	FLHip:   0.1,
	RRHip:   -0.1,
	RLHip:   0.1,
	FRThigh: 0.8,
	FLThigh: 0.8,
	RRThigh: 1.0,
	RLThigh: 1.0,
	FRCalf:  -1.5,
	FLCalf:  -1.5,
	RRCalf:  -1.5,
	RLCalf:  -1.5,
}

// Go1DescriptionOrder is the order joints appear in the robot description,
// leg by leg. Engines that enumerate by description order produce this as
// their native ordering.
var Go1DescriptionOrder = []Name{
	FRHip, FRThigh, FRCalf,
	FLHip, FLThigh, FLCalf,
	RRHip, RRThigh, RRCalf,
	RLHip, RLThigh, RLCalf,
}

// TrunkLink is the link index of the floating base.
const TrunkLink = -1

// LinkName returns the link driven by a joint ("FR_hip_joint" -> "FR_hip").
func LinkName(n Name) string {
	return strings.TrimSuffix(string(n), "_joint")
}

// Leg returns the leg prefix of a joint name ("FR", "FL", "RR", "RL").
func Leg(n Name) string {
	s := string(n)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}
