package media

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/counting"
)

var (
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	black  = color.RGBA{R: 0, G: 0, B: 0, A: 0}
	yellow = color.RGBA{R: 255, G: 215, B: 0, A: 0}
	green  = color.RGBA{R: 46, G: 204, B: 113, A: 0}
	orange = color.RGBA{R: 243, G: 156, B: 18, A: 0}
	red    = color.RGBA{R: 231, G: 76, B: 60, A: 0}

	classColors = map[counting.Class]color.RGBA{
		counting.Car:        {R: 0, G: 200, B: 0, A: 0},
		counting.Truck:      {R: 0, G: 120, B: 255, A: 0},
		counting.Bus:        {R: 255, G: 140, B: 0, A: 0},
		counting.Motorcycle: {R: 220, G: 0, B: 220, A: 0},
	}
)

const font = gocv.FontHersheySimplex

// painter draws on a frame and keeps the first drawing error.
type painter struct {
	img *gocv.Mat
	err error
}

func (p *painter) rect(r image.Rectangle, c color.RGBA, thickness int) {
	if p.err == nil {
		p.err = gocv.Rectangle(p.img, r, c, thickness)
	}
}

func (p *painter) text(s string, at image.Point, scale float64, c color.RGBA, thickness int) {
	if p.err == nil {
		p.err = gocv.PutText(p.img, s, at, font, scale, c, thickness)
	}
}

func (p *painter) line(a, b image.Point, c color.RGBA, thickness int) {
	if p.err == nil {
		p.err = gocv.Line(p.img, a, b, c, thickness)
	}
}

// translucent fills rects on a copy of the frame and blends it back with the
// given opacity.
func (p *painter) translucent(rects []image.Rectangle, colors []color.RGBA, opacity float64) {
	if p.err != nil || len(rects) == 0 {
		return
	}
	overlay := p.img.Clone()
	defer overlay.Close()
	for i, r := range rects {
		if err := gocv.Rectangle(&overlay, r, colors[i], -1); err != nil {
			p.err = err
			return
		}
	}
	p.err = gocv.AddWeighted(overlay, opacity, *p.img, 1-opacity, 0, p.img)
}

// labelled draws text on a filled background.
func (p *painter) labelled(s string, at image.Point, scale float64, fg, bg color.RGBA) {
	size := gocv.GetTextSize(s, font, scale, 1)
	p.rect(image.Rect(at.X, at.Y-size.Y-6, at.X+size.X+6, at.Y+2), bg, -1)
	p.text(s, image.Pt(at.X+3, at.Y-3), scale, fg, 1)
}

func drawDetections(p *painter, dets []counting.Detection) {
	rects := make([]image.Rectangle, len(dets))
	colors := make([]color.RGBA, len(dets))
	for i, d := range dets {
		rects[i] = d.Box
		colors[i] = classColor(d.Class)
	}
	p.translucent(rects, colors, 0.25)

	for _, d := range dets {
		c := classColor(d.Class)
		p.rect(d.Box, c, 2)
		label := fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
		p.labelled(label, image.Pt(d.Box.Min.X, max(d.Box.Min.Y, 16)), 0.5, white, c)
	}
}

// drawTracks tags each tracked vehicle with its per-class id under the box.
func drawTracks(p *painter, size image.Point, tracks []counting.Track) {
	for _, tr := range tracks {
		label := fmt.Sprintf("%s #%d", tr.Class, tr.ID)
		y := min(tr.Box.Max.Y+16, size.Y-2)
		p.labelled(label, image.Pt(tr.Box.Min.X, y), 0.4, black, classColor(tr.Class))
	}
}

func drawLaneDividers(p *painter, size image.Point) {
	for _, y := range counting.LaneDividers(size.Y) {
		p.line(image.Pt(0, y), image.Pt(size.X, y), yellow, 2)
	}
}

// drawLanePanels draws one stats panel per lane with a density bar.
func drawLanePanels(p *painter, size image.Point, stats [counting.NumLanes]counting.LaneStats) {
	const panelW, panelH, barH = 230, 58, 8
	dividers := counting.LaneDividers(size.Y)
	tops := [counting.NumLanes]int{0, dividers[0], dividers[1]}

	var panels []image.Rectangle
	var shades []color.RGBA
	for i := range stats {
		r := image.Rect(size.X-panelW-10, tops[i]+10, size.X-10, tops[i]+10+panelH)
		panels = append(panels, r)
		shades = append(shades, black)
	}
	p.translucent(panels, shades, 0.5)

	for i, s := range stats {
		r := panels[i]
		p.text(fmt.Sprintf("%s: %d", counting.LaneNames[i], s.Total), image.Pt(r.Min.X+8, r.Min.Y+20), 0.5, white, 1)

		density := s.Density()
		bar := image.Rect(r.Min.X+8, r.Max.Y-barH-10, r.Max.X-8, r.Max.Y-10)
		fill := bar
		fill.Max.X = bar.Min.X + int(float64(bar.Dx())*density/100)
		p.rect(bar, white, 1)
		if fill.Dx() > 0 {
			p.rect(fill, densityColor(density), -1)
		}
		p.text(fmt.Sprintf("%.0f%%", density), image.Pt(r.Max.X-48, r.Min.Y+20), 0.45, white, 1)
	}
}

func drawFrameCounter(p *painter, size image.Point, frame, total int) {
	s := fmt.Sprintf("Frame %d", frame)
	if total > 0 {
		s = fmt.Sprintf("Frame %d/%d", frame, total)
	}
	p.labelled(s, image.Pt(10, size.Y-10), 0.55, white, black)
}

// drawKPIPanel draws the 40% black summary panel used by snapshots.
func drawKPIPanel(p *painter, total int, density float64) {
	panel := image.Rect(10, 10, 280, 100)
	p.translucent([]image.Rectangle{panel}, []color.RGBA{black}, 0.4)
	p.text(fmt.Sprintf("Total: %d", total), image.Pt(panel.Min.X+14, panel.Min.Y+36), 0.9, white, 2)
	p.text(fmt.Sprintf("Density: %.1f%%", density), image.Pt(panel.Min.X+14, panel.Min.Y+74), 0.9, densityColor(density), 2)
}

func classColor(c counting.Class) color.RGBA {
	if col, ok := classColors[c]; ok {
		return col
	}
	return white
}

func densityColor(d float64) color.RGBA {
	switch {
	case d < 40:
		return green
	case d < 70:
		return orange
	default:
		return red
	}
}
