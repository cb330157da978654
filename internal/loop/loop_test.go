package loop_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/quadsim/internal/config"
	"github.com/san-kum/quadsim/internal/dynamo"
	"github.com/san-kum/quadsim/internal/joints"
	"github.com/san-kum/quadsim/internal/loop"
	"github.com/san-kum/quadsim/internal/physics"
)

type stepCounter struct {
	mu    sync.Mutex
	calls int
	last  dynamo.JointVector
}

func (c *stepCounter) OnStep(obs dynamo.Observation, action dynamo.JointVector, t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = action
}

// flakyReads fails joint state reads once fail is set.
type flakyReads struct {
	*physics.Sandbox
	fail bool
}

func (f *flakyReads) JointStates(h physics.RobotHandle, idx []int) ([]physics.JointState, error) {
	if f.fail {
		return nil, fmt.Errorf("joint state read: %w", dynamo.ErrStepService)
	}
	return f.Sandbox.JointStates(h, idx)
}

func targetCalls(sb *physics.Sandbox) []physics.Call {
	var out []physics.Call
	for _, c := range sb.Calls() {
		if c.Op == "targets" {
			out = append(out, c)
		}
	}
	return out
}

var _ = Describe("Loop", func() {
	var (
		ctx context.Context
		cfg *config.Config
		sb  *physics.Sandbox
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.DefaultConfig()
		cfg.SettleSeconds = 0.5
		cfg.Robot.MergeFixedLinks = false
		sb = physics.NewSandbox(physics.WithCallLog())
	})

	Describe("construction", func() {
		It("starts initializing with repeat 4 at 200/50 Hz", func() {
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.State()).To(Equal(loop.Initializing))
			Expect(l.State().String()).To(Equal("initializing"))
			Expect(l.Repeat()).To(Equal(4))
			Expect(l.Steps()).To(BeZero())
		})

		It("discovers a native order that differs from the external one", func() {
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.JointIndices()).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
			Expect(l.Native().Name(0)).To(Equal(joints.FRHip))
			Expect(l.External().Name(0)).To(Equal(joints.FLHip))
			Expect(l.Native().SameNames(l.External())).To(BeTrue())
		})

		It("configures the engine like the reference setup", func() {
			_, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())
			Expect(sb.TimeStep()).To(Equal(0.005))
			Expect(sb.CountCalls("load")).To(Equal(2), "ground plane and robot")
			Expect(sb.CountCalls("sensor")).To(Equal(13))

			d, ok := sb.Dynamics(1, 3)
			Expect(ok).To(BeTrue())
			Expect(d.LateralFriction).To(Equal(0.8))
			Expect(d.RollingFriction).To(Equal(0.6))

			ground, ok := sb.Dynamics(0, physics.BaseLink)
			Expect(ok).To(BeTrue())
			Expect(ground.LateralFriction).To(Equal(1.0))
		})

		DescribeTable("rejects bad configuration",
			func(mutate func(*config.Config)) {
				mutate(cfg)
				_, err := loop.New(cfg, sb)
				Expect(err).To(MatchError(dynamo.ErrConfiguration))
			},
			Entry("non-integer rate ratio", func(c *config.Config) { c.ControlHz = 60 }),
			Entry("control faster than sim", func(c *config.Config) { c.ControlHz = 400 }),
			Entry("unknown robot", func(c *config.Config) { c.Robot.Description = "spot" }),
			Entry("renamed external joint", func(c *config.Config) {
				idx := c.ExternalOrder[joints.RLCalf]
				delete(c.ExternalOrder, joints.RLCalf)
				c.ExternalOrder["RL_foot_joint"] = idx
				c.InitialPose["RL_foot_joint"] = c.InitialPose[joints.RLCalf]
				delete(c.InitialPose, joints.RLCalf)
			}),
			Entry("duplicate external index", func(c *config.Config) {
				c.ExternalOrder[joints.FRHip] = c.ExternalOrder[joints.FLHip]
			}),
			Entry("unknown actuation", func(c *config.Config) { c.Actuation = "velocity" }),
		)

		It("rejects a robot without twelve actuated joints", func() {
			path := filepath.Join(GinkgoT().TempDir(), "tripod.yaml")
			body := "name: tripod\njoints:\n"
			for _, n := range []string{"a", "b", "c"} {
				body += "  - name: " + n + "_joint\n    type: revolute\n    inertia: 0.01\n"
			}
			Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
			cfg.Robot.Description = path

			_, err := loop.New(cfg, sb)
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
		})
	})

	Describe("initialization", func() {
		It("settles for the configured duration and becomes ready", func() {
			cfg.SettleSeconds = 5
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())

			Expect(l.Init(ctx)).To(Succeed())
			Expect(l.State()).To(Equal(loop.Ready))
			Expect(sb.CountCalls("step")).To(Equal(1000))
			Expect(sb.CountCalls("reset")).To(Equal(12))
			Expect(l.SimTime()).To(BeNumerically("~", 5.0, 1e-9))
			Expect(l.Steps()).To(BeZero())
		})

		It("refuses a second init", func() {
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Init(ctx)).To(Succeed())
			Expect(l.Init(ctx)).To(MatchError(dynamo.ErrProtocol))
		})

		It("stays initializing when settle is cancelled", func() {
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())

			cctx, cancel := context.WithCancel(ctx)
			cancel()
			Expect(l.Init(cctx)).To(MatchError(context.Canceled))
			Expect(l.State()).To(Equal(loop.Initializing))
		})

		It("faults for good when the engine fails during settle", func() {
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())

			sb.FailAfter(10)
			before := sb.Steps()
			Expect(l.Init(ctx)).To(MatchError(dynamo.ErrStepService))
			Expect(l.State()).To(Equal(loop.Faulted))

			sb.FailAfter(-1)
			Expect(l.Init(ctx)).To(MatchError(dynamo.ErrStepService))
			Expect(sb.Steps()).To(Equal(before + 10))
		})
	})

	Describe("stepping", func() {
		var (
			l        *loop.Loop
			observer *stepCounter
			pose     dynamo.JointVector
		)

		BeforeEach(func() {
			observer = &stepCounter{}
			var err error
			l, err = loop.New(cfg, sb, loop.WithObserver(observer))
			Expect(err).NotTo(HaveOccurred())
			pose, err = l.Native().Vector(cfg.InitialPose)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses to step before init and records nothing", func() {
			_, err := l.Step(ctx, make([]float64, 12))
			Expect(err).To(MatchError(dynamo.ErrProtocol))

			_, ok := l.LastAction()
			Expect(ok).To(BeFalse())
			Expect(l.Steps()).To(BeZero())
			Expect(sb.CountCalls("step")).To(BeZero())

			_, err = l.Observation()
			Expect(err).To(MatchError(dynamo.ErrProtocol))
		})

		Context("after init", func() {
			BeforeEach(func() {
				Expect(l.Init(ctx)).To(Succeed())
				sb.ResetCalls()
			})

			DescribeTable("rejects malformed actions without stepping",
				func(action []float64) {
					_, err := l.Step(ctx, action)
					Expect(err).To(MatchError(dynamo.ErrProtocol))
					Expect(sb.Calls()).To(BeEmpty())
					_, ok := l.LastAction()
					Expect(ok).To(BeFalse())
				},
				Entry("too short", make([]float64, 11)),
				Entry("too long", make([]float64, 13)),
				Entry("nil", []float64(nil)),
				Entry("NaN", []float64{0, 0, 0, math.NaN(), 0, 0, 0, 0, 0, 0, 0, 0}),
				Entry("Inf", []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, math.Inf(-1)}),
			)

			It("drives the initial pose exactly for a zero action", func() {
				obs, err := l.Step(ctx, make([]float64, 12))
				Expect(err).NotTo(HaveOccurred())
				Expect(obs).To(HaveLen(dynamo.ObservationSize))

				calls := targetCalls(sb)
				Expect(calls).To(HaveLen(4))
				for _, c := range calls {
					Expect(c.Values).To(Equal(pose[:]))
					Expect(c.Joints).To(Equal(l.JointIndices()))
				}
				Expect(sb.CountCalls("step")).To(Equal(4))
			})

			It("remaps external actions into native targets", func() {
				ext := l.External()
				action := make([]float64, 12)
				i, _ := ext.Index(joints.RRThigh)
				action[i] = 1.0

				_, err := l.Step(ctx, action)
				Expect(err).NotTo(HaveOccurred())

				n, _ := l.Native().Index(joints.RRThigh)
				targets := targetCalls(sb)[0].Values
				for k := range targets {
					if k == n {
						Expect(targets[k]).To(Equal(pose[k] + 0.25))
					} else {
						Expect(targets[k]).To(Equal(pose[k]))
					}
				}
			})

			It("reports the supplied action as the last action on every step", func() {
				action := []float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6, 0.7, -0.8, 0.9, -1.0, 1.1, -1.2}
				want, err := dynamo.JointVectorFrom(action)
				Expect(err).NotTo(HaveOccurred())

				for i := 0; i < 2; i++ {
					obs, err := l.Step(ctx, action)
					Expect(err).NotTo(HaveOccurred())
					Expect(obs.LastAction()).To(Equal(want))

					last, ok := l.LastAction()
					Expect(ok).To(BeTrue())
					Expect(last).To(Equal(want))
				}
				Expect(l.Steps()).To(Equal(2))
				Expect(observer.calls).To(Equal(2))
				Expect(observer.last).To(Equal(want))
			})

			It("reports joint positions in external order", func() {
				obs, err := l.Step(ctx, make([]float64, 12))
				Expect(err).NotTo(HaveOccurred())

				q := obs.JointPositions()
				ext := l.External()
				for name, v := range cfg.InitialPose {
					i, _ := ext.Index(name)
					Expect(q[i]).To(BeNumerically("~", v, 0.05), string(name))
				}
			})

			It("projects gravity exactly for an upright base", func() {
				Expect(sb.SetBaseOrientation(l.Robot(), dynamo.IdentityQuaternion)).To(Succeed())
				obs, err := l.Step(ctx, make([]float64, 12))
				Expect(err).NotTo(HaveOccurred())
				Expect(obs.Gravity()).To(Equal(dynamo.Vec3{0, 0, -9.81}))
			})

			It("includes the latest command", func() {
				l.SetCommand(dynamo.Command{0.4, 0.1, -0.3})
				obs, err := l.Step(ctx, make([]float64, 12))
				Expect(err).NotTo(HaveOccurred())
				Expect(obs.Command()).To(Equal(dynamo.Command{0.4, 0.1, -0.3}))
				Expect(l.Command()).To(Equal(dynamo.Command{0.4, 0.1, -0.3}))
			})

			It("surfaces engine failures and keeps the previous last action", func() {
				first := make([]float64, 12)
				first[0] = 0.5
				_, err := l.Step(ctx, first)
				Expect(err).NotTo(HaveOccurred())

				sb.FailAfter(1)
				_, err = l.Step(ctx, make([]float64, 12))
				Expect(err).To(MatchError(dynamo.ErrStepService))

				var se *dynamo.StepError
				Expect(errors.As(err, &se)).To(BeTrue())
				Expect(se.Step).To(Equal(1))
				Expect(se.SubStep).To(Equal(1))

				last, ok := l.LastAction()
				Expect(ok).To(BeTrue())
				Expect(last[0]).To(Equal(0.5))
				Expect(l.Steps()).To(Equal(1))
			})

			It("stays halted after an engine failure", func() {
				sb.FailAfter(2)
				_, err := l.Step(ctx, make([]float64, 12))
				Expect(err).To(MatchError(dynamo.ErrStepService))
				Expect(l.State()).To(Equal(loop.Faulted))
				Expect(l.State().String()).To(Equal("faulted"))
				Expect(l.Fault()).To(MatchError(dynamo.ErrStepService))

				sb.FailAfter(-1)
				stepped := sb.CountCalls("step")

				_, err = l.Step(ctx, make([]float64, 12))
				Expect(err).To(MatchError(dynamo.ErrStepService))
				_, err = l.Observation()
				Expect(err).To(MatchError(dynamo.ErrStepService))
				Expect(l.Init(ctx)).To(MatchError(dynamo.ErrStepService))

				Expect(sb.CountCalls("step")).To(Equal(stepped))
				Expect(l.Steps()).To(BeZero())
				_, ok := l.LastAction()
				Expect(ok).To(BeFalse())
			})

			It("does not start a step on a cancelled context", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := l.Step(cctx, make([]float64, 12))
				Expect(err).To(MatchError(context.Canceled))
				Expect(sb.CountCalls("step")).To(BeZero())
			})

			It("serializes concurrent steps", func() {
				var wg sync.WaitGroup
				for g := 0; g < 4; g++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						for i := 0; i < 5; i++ {
							_, err := l.Step(ctx, make([]float64, 12))
							Expect(err).NotTo(HaveOccurred())
						}
					}()
				}
				wg.Wait()

				Expect(l.Steps()).To(Equal(20))
				calls := sb.Calls()
				Expect(calls).To(HaveLen(20 * 8))
				for i := 0; i < len(calls); i += 2 {
					Expect(calls[i].Op).To(Equal("targets"))
					Expect(calls[i+1].Op).To(Equal("step"))
				}
			})

			It("has no observation before the first step", func() {
				_, err := l.Observation()
				Expect(err).To(MatchError(dynamo.ErrProtocol))
				Expect(l.State()).To(Equal(loop.Ready))
			})

			It("observes without stepping", func() {
				action := make([]float64, 12)
				action[3] = -0.25
				stepped, err := l.Step(ctx, action)
				Expect(err).NotTo(HaveOccurred())

				before := sb.CountCalls("step")
				obs, err := l.Observation()
				Expect(err).NotTo(HaveOccurred())
				Expect(obs).To(Equal(stepped))
				Expect(obs.LastAction()[3]).To(Equal(-0.25))
				Expect(sb.CountCalls("step")).To(Equal(before))
			})
		})
	})

	Describe("observation failures", func() {
		It("leaves the step uncommitted when the observation cannot be read", func() {
			engine := &flakyReads{Sandbox: sb}
			l, err := loop.New(cfg, engine)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Init(ctx)).To(Succeed())

			first := make([]float64, 12)
			first[2] = 0.3
			_, err = l.Step(ctx, first)
			Expect(err).NotTo(HaveOccurred())

			engine.fail = true
			obs, err := l.Step(ctx, make([]float64, 12))
			Expect(err).To(MatchError(dynamo.ErrStepService))
			Expect(obs).To(Equal(dynamo.Observation{}))
			Expect(l.Steps()).To(Equal(1))
			last, ok := l.LastAction()
			Expect(ok).To(BeTrue())
			Expect(last[2]).To(Equal(0.3))
			Expect(l.State()).To(Equal(loop.Faulted))
		})
	})

	Describe("torque actuation", func() {
		It("commands torques instead of position targets", func() {
			cfg.Actuation = "torque"
			l, err := loop.New(cfg, sb)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Init(ctx)).To(Succeed())
			sb.ResetCalls()

			_, err = l.Step(ctx, make([]float64, 12))
			Expect(err).NotTo(HaveOccurred())
			Expect(sb.CountCalls("torques")).To(Equal(4))
			Expect(sb.CountCalls("targets")).To(BeZero())
		})
	})
})
