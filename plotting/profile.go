// Package plotting draws the timing profiles of masters.
package plotting

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/inference"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// A Profile is the timing row of one master.
type Profile struct {
	RunID     string
	Master    int
	PhysAddr  uint64
	Average   float64
	Threshold float64

	// Timings[k] is the timing between the master and entry Master+1+k.
	Timings []float64
}

// A ProfileHook keeps the profiles of the first masters of a run.
type ProfileHook struct {
	limit    int
	profiles []Profile
}

// NewProfileHook creates a hook that keeps at most limit profiles.
func NewProfileHook(limit int) *ProfileHook {
	return &ProfileHook{limit: limit}
}

// Profiles returns the profiles kept so far.
func (h *ProfileHook) Profiles() []Profile {
	return h.profiles
}

// Func keeps the row of a classified master.
func (h *ProfileHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != inference.HookPosMasterClassified {
		return
	}

	if len(h.profiles) >= h.limit {
		return
	}

	run, ok := ctx.Domain.(*inference.Run)
	if !ok {
		return
	}

	stats := ctx.Item.(inference.MasterStats)
	row := ctx.Detail.([]float64)

	h.profiles = append(h.profiles, Profile{
		RunID:     run.ID(),
		Master:    stats.Index,
		PhysAddr:  run.Table().Entry(stats.Index).PhysAddr,
		Average:   stats.Average,
		Threshold: stats.Threshold,
		Timings:   append([]float64(nil), row...),
	})
}

// Save writes one PNG per non-empty profile into dir and returns the file
// names.
func (h *ProfileHook) Save(dir string) ([]string, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("plotting: %w", err)
	}

	var files []string

	for _, prof := range h.profiles {
		if len(prof.Timings) == 0 {
			continue
		}

		p, err := prof.Plot()
		if err != nil {
			return files, err
		}

		filename := filepath.Join(dir, fmt.Sprintf("master_%05d.png", prof.Master))

		err = p.Save(30*vg.Centimeter, 15*vg.Centimeter, filename)
		if err != nil {
			return files, fmt.Errorf("plotting: %w", err)
		}

		files = append(files, filename)
	}

	return files, nil
}

// Plot draws the profile. Timings at or above the threshold are red.
func (prof Profile) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Master %d (0x%x)", prof.Master, prof.PhysAddr)
	p.X.Label.Text = "Entry"
	p.Y.Label.Text = "Cycles"

	var below, above plotter.XYs

	for k, t := range prof.Timings {
		xy := plotter.XY{X: float64(prof.Master + 1 + k), Y: t}
		if t >= prof.Threshold {
			above = append(above, xy)
		} else {
			below = append(below, xy)
		}
	}

	err := addScatter(p, "hit", below, color.RGBA{B: 200, A: 255})
	if err != nil {
		return nil, err
	}

	err = addScatter(p, "conflict", above, color.RGBA{R: 220, A: 255})
	if err != nil {
		return nil, err
	}

	first := float64(prof.Master + 1)
	last := float64(prof.Master + len(prof.Timings))

	err = addLevel(p, "average", first, last, prof.Average, nil)
	if err != nil {
		return nil, err
	}

	err = addLevel(p, "threshold", first, last, prof.Threshold,
		[]vg.Length{vg.Points(5), vg.Points(5)})
	if err != nil {
		return nil, err
	}

	return p, nil
}

func addScatter(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	if len(xys) == 0 {
		return nil
	}

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}

	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(1.5)

	p.Add(s)
	p.Legend.Add(name, s)

	return nil
}

func addLevel(
	p *plot.Plot,
	name string,
	from, to, y float64,
	dashes []vg.Length,
) error {
	l, err := plotter.NewLine(plotter.XYs{{X: from, Y: y}, {X: to, Y: y}})
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}

	l.LineStyle = plotter.DefaultLineStyle
	l.LineStyle.Dashes = dashes

	p.Add(l)
	p.Legend.Add(name, l)

	return nil
}
