// Command plantsim drops a sphere onto the ground plane with a discrete
// multibody plant and plots the height trajectory.
package main

import (
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/internal/pointmass"
	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/multibody/plant"
	"go.dynamech.dev/plant/spatialmath"
)

var (
	configPath string
	duration   float64
	dropHeight float64
	ballMass   float64
	ballRadius float64
	friction   float64
)

func main() {
	cmd := &cobra.Command{
		Use:   "plantsim",
		Short: "Simulate a sphere dropped on a ground plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML plant config file")
	cmd.Flags().Float64Var(&duration, "duration", 1.0, "simulated seconds")
	cmd.Flags().Float64Var(&dropHeight, "drop-height", 0.2, "initial height of the sphere center, m")
	cmd.Flags().Float64Var(&ballMass, "mass", 1.0, "sphere mass, kg")
	cmd.Flags().Float64Var(&ballRadius, "radius", 0.05, "sphere radius, m")
	cmd.Flags().Float64Var(&friction, "friction", 0.5, "surface friction coefficient")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	logger := golog.NewDevelopmentLogger("plantsim")

	cfg := plant.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = plant.LoadConfig(configPath); err != nil {
			return err
		}
	}

	tree := pointmass.NewTree()
	tree.SetGravity(r3.Vector{Z: -cfg.Gravity})
	ball, err := tree.AddBody("ball", ballMass, multibody.DefaultModelInstance())
	if err != nil {
		return err
	}

	sceneGraph := pointmass.NewSceneGraph()
	p, err := plant.NewPlant(cfg.TimeStep, tree, logger)
	if err != nil {
		return err
	}
	if _, err := p.RegisterAsSourceForSceneGraph(sceneGraph); err != nil {
		return err
	}
	surface, err := multibody.NewCoulombFriction(friction, friction)
	if err != nil {
		return err
	}
	if _, err := p.RegisterCollisionGeometry(
		ball, spatialmath.NewZeroPose(), geometry.Sphere{Radius: ballRadius}, surface, sceneGraph); err != nil {
		return err
	}
	if _, err := p.RegisterCollisionGeometry(
		tree.Body(multibody.WorldBodyIndex()), spatialmath.NewZeroPose(),
		geometry.HalfSpace{}, surface, sceneGraph); err != nil {
		return err
	}
	if err := p.Finalize(sceneGraph); err != nil {
		return err
	}
	if err := cfg.Apply(p); err != nil {
		return err
	}

	ctx, err := p.CreateDefaultContext()
	if err != nil {
		return err
	}
	queryPort, err := p.GeometryQueryInputPort()
	if err != nil {
		return err
	}
	if err := queryPort.Fix(ctx, sceneGraph.QueryObject()); err != nil {
		return err
	}
	posesPort, err := p.GeometryPosesOutputPort()
	if err != nil {
		return err
	}
	resultsPort, err := p.ContactResultsOutputPort()
	if err != nil {
		return err
	}
	if err := ctx.SetPositions([]float64{0, 0, dropHeight}); err != nil {
		return err
	}

	steps := int(duration / cfg.TimeStep)
	heights := make([]float64, 0, steps)
	logger.Infow("simulating", "steps", steps, "time_step", cfg.TimeStep,
		"penetration_allowance", cfg.PenetrationAllowance)

	for i := 0; i < steps; i++ {
		poses, err := posesPort.Eval(ctx)
		if err != nil {
			return err
		}
		sceneGraph.SetFramePoses(poses)
		if err := p.Step(ctx); err != nil {
			return err
		}
		heights = append(heights, ctx.Positions()[2])
	}

	results, err := resultsPort.Eval(ctx)
	if err != nil {
		return err
	}
	fmt.Println(asciigraph.Plot(downsample(heights, 120), asciigraph.Height(16), asciigraph.Caption("sphere height, m")))
	logger.Infow("done",
		"final_height", ctx.Positions()[2],
		"final_speed", ctx.Velocities()[2],
		"contacts", results.NumContacts(),
	)
	if results.NumContacts() > 0 {
		info := results.ContactInfo(0)
		logger.Infow("resting contact",
			"normal_force", info.ContactForceW.Z,
			"separation_velocity", info.SeparationVelocity,
			"slip_speed", info.SlipSpeed,
		)
	}
	return nil
}

// downsample keeps the plot readable for long runs.
func downsample(data []float64, maxPoints int) []float64 {
	if len(data) <= maxPoints {
		return data
	}
	out := make([]float64, 0, maxPoints)
	stride := float64(len(data)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		out = append(out, data[int(float64(i)*stride)])
	}
	return out
}
