// mirrorprop propagates wavefronts through thick mirrors and inspects the
// inputs and outputs of that process.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"row-major/thickmirror/drift"
	"row-major/thickmirror/elementpack"
	"row-major/thickmirror/propagate"
	"row-major/thickmirror/reflectivity"
	"row-major/thickmirror/resample"
	"row-major/thickmirror/surface"
	"row-major/thickmirror/vmath/vec3"
	"row-major/thickmirror/wavefront"
)

var cmdRoot = &cobra.Command{
	Use:          "mirrorprop",
	SilenceUsage: true,
}

var (
	elementFile string
)

func init() {
	cmdRoot.PersistentFlags().StringVar(&elementFile, "element", "", "JSON5 element description.")
}

var cmdPropagate = &cobra.Command{
	Use:   "propagate",
	Short: "Propagate a wavefront file through an element",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		spec, err := elementpack.Load(elementFile)
		if err != nil {
			return err
		}
		elem, err := spec.Build()
		if err != nil {
			return err
		}
		table, err := spec.Table()
		if err != nil {
			return err
		}

		w, err := wavefront.ReadFile(propagateIn)
		if err != nil {
			return err
		}

		opts := propagate.Options{
			Workers: propagateWorkers,
			Mode:    resample.Mode(propagateInterp),
			Table:   table,
		}
		switch propagateDrift {
		case "curvature":
			opts.Drift = drift.Curvature{}
		case "angular":
			opts.Drift = drift.AngularSpectrum{Workers: propagateWorkers}
		default:
			return fmt.Errorf("unknown drift %q", propagateDrift)
		}

		stats, err := propagate.Propagate(ctx, elem, w, opts)
		if err != nil {
			return fmt.Errorf("while propagating %s: %w", propagateIn, err)
		}
		glog.Infof("Traced %d rays, %d missed, %d outside the aperture", stats.Traced, stats.Missed, stats.OffAperture)

		if err := wavefront.WriteFile(w, propagateOut); err != nil {
			return fmt.Errorf("while writing %s: %w", propagateOut, err)
		}
		return nil
	},
}

var (
	propagateIn      string
	propagateOut     string
	propagateInterp  int
	propagateWorkers int
	propagateDrift   string
)

func init() {
	cmdPropagate.Flags().StringVar(&propagateIn, "in", "", "Input wavefront file.")
	cmdPropagate.Flags().StringVar(&propagateOut, "out", "", "Output wavefront file.")
	cmdPropagate.Flags().IntVar(&propagateInterp, "interp", 1, "Resampling: 1 bilinear, 2 bi-quadratic.")
	cmdPropagate.Flags().IntVar(&propagateWorkers, "workers", 0, "Concurrent workers; 0 means one per CPU.")
	cmdPropagate.Flags().StringVar(&propagateDrift, "drift", "curvature", "Drift for the extents: curvature or angular.")
}

var cmdDescribe = &cobra.Command{
	Use:   "describe",
	Short: "Print the geometry derived for an element",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := elementpack.Load(elementFile)
		if err != nil {
			return err
		}
		elem, err := spec.Build()
		if err != nil {
			return err
		}

		f := elem.Frame()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "surface:      %s %T\n", spec.Kind, elem.Surface())
		fmt.Fprintf(out, "method:       %v\n", elem.Params().Method)
		fmt.Fprintf(out, "normal:       %v\n", f.Normal())
		fmt.Fprintf(out, "tangent:      %v\n", f.Tangent())
		fmt.Fprintf(out, "center:       %v\n", f.Center())
		fmt.Fprintf(out, "input axis:   %v (beam %v)\n", elem.InputAxis(), f.VectorToBeam(elem.InputAxis()))
		fmt.Fprintf(out, "output axis:  %v (beam %v)\n", elem.OutputAxis(), f.VectorToBeam(elem.OutputAxis()))
		fmt.Fprintf(out, "central hit:  %v\n", elem.CentralHit())
		hor, ver := elem.OutputBasis()
		fmt.Fprintf(out, "output basis: hor=%v ver=%v\n", hor, ver)
		in, o := elem.Extents()
		fmt.Fprintf(out, "extents:      in=%v out=%v\n", in, o)
		rt, rs := elem.Surface().Radii()
		fmt.Fprintf(out, "radii:        tangential=%v sagittal=%v\n", rt, rs)
		fx, fz := elem.FocalLengths()
		fmt.Fprintf(out, "focal:        x=%v z=%v\n", fx, fz)

		p := elem.Params()
		if p.NPointsTangential > 1 && p.NPointsSagittal > 1 {
			inside, maxTilt := footprint(elem.Surface(), p.NPointsTangential, p.NPointsSagittal)
			fmt.Fprintf(out, "footprint:    %d of %d points inside, max normal tilt %v rad\n",
				inside, p.NPointsTangential*p.NPointsSagittal, maxTilt)
		}
		return nil
	},
}

var cmdGaussian = &cobra.Command{
	Use:   "gaussian",
	Short: "Write a Gaussian wavefront file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(gaussianXRange) != 2 || len(gaussianZRange) != 2 {
			return fmt.Errorf("--x-range and --z-range take two values")
		}
		w, err := wavefront.Gaussian(wavefront.GaussianParams{
			Energy:     wavefront.Mesh{Start: gaussianEStart, Step: gaussianEStep, N: gaussianNE},
			X:          meshOver(gaussianXRange, gaussianNX),
			Z:          meshOver(gaussianZRange, gaussianNZ),
			SigmaX:     gaussianSigmaX,
			SigmaZ:     gaussianSigmaZ,
			RadiusX:    gaussianRadiusX,
			RadiusZ:    gaussianRadiusZ,
			Horizontal: 1,
		})
		if err != nil {
			return err
		}
		return wavefront.WriteFile(w, gaussianOut)
	},
}

var (
	gaussianOut                    string
	gaussianNX, gaussianNZ         int
	gaussianNE                     int
	gaussianEStart, gaussianEStep  float64
	gaussianXRange, gaussianZRange []float64
	gaussianSigmaX, gaussianSigmaZ float64
	gaussianRadiusX                float64
	gaussianRadiusZ                float64
)

func init() {
	cmdGaussian.Flags().StringVar(&gaussianOut, "out", "", "Output wavefront file.")
	cmdGaussian.Flags().IntVar(&gaussianNX, "nx", 101, "Horizontal points.")
	cmdGaussian.Flags().IntVar(&gaussianNZ, "nz", 101, "Vertical points.")
	cmdGaussian.Flags().IntVar(&gaussianNE, "ne", 1, "Photon energies.")
	cmdGaussian.Flags().Float64Var(&gaussianEStart, "e-start", 1000, "First photon energy, eV.")
	cmdGaussian.Flags().Float64Var(&gaussianEStep, "e-step", 0, "Photon energy step, eV.")
	cmdGaussian.Flags().Float64SliceVar(&gaussianXRange, "x-range", []float64{-1e-3, 1e-3}, "Horizontal mesh range, m.")
	cmdGaussian.Flags().Float64SliceVar(&gaussianZRange, "z-range", []float64{-1e-3, 1e-3}, "Vertical mesh range, m.")
	cmdGaussian.Flags().Float64Var(&gaussianSigmaX, "sigma-x", 1e-4, "Horizontal RMS size, m.")
	cmdGaussian.Flags().Float64Var(&gaussianSigmaZ, "sigma-z", 1e-4, "Vertical RMS size, m.")
	cmdGaussian.Flags().Float64Var(&gaussianRadiusX, "radius-x", 0, "Horizontal curvature radius, m; 0 means collimated.")
	cmdGaussian.Flags().Float64Var(&gaussianRadiusZ, "radius-z", 0, "Vertical curvature radius, m; 0 means collimated.")
}

var cmdPlot = &cobra.Command{
	Use:   "plot",
	Short: "Render the intensity of a wavefront file as a PNG heat map",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := wavefront.ReadFile(plotIn)
		if err != nil {
			return err
		}
		return saveIntensityPlot(w, plotEnergyIndex, plotOut)
	},
}

var (
	plotIn          string
	plotOut         string
	plotEnergyIndex int
)

func init() {
	cmdPlot.Flags().StringVar(&plotIn, "in", "", "Input wavefront file.")
	cmdPlot.Flags().StringVar(&plotOut, "out", "intensity.png", "Output image.")
	cmdPlot.Flags().IntVar(&plotEnergyIndex, "energy-index", 0, "Photon energy slice to plot.")
}

var cmdReflTable = &cobra.Command{
	Use:   "refltable",
	Short: "Write a constant-coefficient reflectivity table",
	RunE: func(cmd *cobra.Command, args []string) error {
		scaleE, err := reflectivity.ParseScale(reflScaleE)
		if err != nil {
			return err
		}
		scaleA, err := reflectivity.ParseScale(reflScaleA)
		if err != nil {
			return err
		}
		energy, err := reflectivity.NewAxis(reflEStart, reflEFin, reflNE, scaleE)
		if err != nil {
			return err
		}
		angle, err := reflectivity.NewAxis(reflAStart, reflAFin, reflNA, scaleA)
		if err != nil {
			return err
		}
		if len(reflRS) != 2 || len(reflRP) != 2 {
			return fmt.Errorf("--rs and --rp take a real and an imaginary part")
		}

		t := reflectivity.Constant(energy, angle, complex(reflRS[0], reflRS[1]), complex(reflRP[0], reflRP[1]))
		return reflectivity.WriteFile(t, reflOut)
	},
}

var (
	reflOut                string
	reflEStart, reflEFin   float64
	reflNE                 int
	reflAStart, reflAFin   float64
	reflNA                 int
	reflScaleE, reflScaleA string
	reflRS, reflRP         []float64
)

func init() {
	cmdReflTable.Flags().StringVar(&reflOut, "out", "", "Output table file.")
	cmdReflTable.Flags().Float64Var(&reflEStart, "e-start", 100, "First photon energy, eV.")
	cmdReflTable.Flags().Float64Var(&reflEFin, "e-fin", 10000, "Last photon energy, eV.")
	cmdReflTable.Flags().IntVar(&reflNE, "ne", 2, "Photon energies.")
	cmdReflTable.Flags().Float64Var(&reflAStart, "a-start", 0, "First grazing angle, rad.")
	cmdReflTable.Flags().Float64Var(&reflAFin, "a-fin", math.Pi/2, "Last grazing angle, rad.")
	cmdReflTable.Flags().IntVar(&reflNA, "na", 2, "Grazing angles.")
	cmdReflTable.Flags().StringVar(&reflScaleE, "scale-e", "lin", "Energy axis scale: lin or log.")
	cmdReflTable.Flags().StringVar(&reflScaleA, "scale-a", "lin", "Angle axis scale: lin or log.")
	cmdReflTable.Flags().Float64SliceVar(&reflRS, "rs", []float64{1, 0}, "Sigma coefficient, real and imaginary.")
	cmdReflTable.Flags().Float64SliceVar(&reflRP, "rp", []float64{1, 0}, "Pi coefficient, real and imaginary.")
}

func init() {
	cmdRoot.AddCommand(cmdPropagate, cmdDescribe, cmdGaussian, cmdPlot, cmdReflTable)
}

func meshOver(r []float64, n int) wavefront.Mesh {
	m := wavefront.Mesh{Start: r[0], N: n}
	if n > 1 {
		m.Step = (r[1] - r[0]) / float64(n-1)
	}
	return m
}

// footprint samples the aperture's bounding rectangle on an nt x ns grid,
// counting points inside the aperture and the largest normal tilt among them.
func footprint(s surface.Surface, nt, ns int) (int, float64) {
	apt := s.Aperture()
	inside := 0
	maxTilt := 0.0
	for i := 0; i < nt; i++ {
		x := -apt.HalfTangential + 2*apt.HalfTangential*float64(i)/float64(nt-1)
		for j := 0; j < ns; j++ {
			y := -apt.HalfSagittal + 2*apt.HalfSagittal*float64(j)/float64(ns-1)
			if !s.InAperture(x, y) {
				continue
			}
			inside++
			n := s.NormalAt(x, y)
			tilt := math.Acos(math.Max(-1, math.Min(1, vec3.IProd(n, vec3.UnitZ))))
			maxTilt = math.Max(maxTilt, tilt)
		}
	}
	return inside, maxTilt
}

func main() {
	defer glog.Flush()
	glog.CopyStandardLogTo("INFO")
	cmdRoot.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	if err := cmdRoot.Execute(); err != nil {
		glog.Exitf("mirrorprop: %v", err)
	}
}
