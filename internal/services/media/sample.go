package media

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/counting"
)

// sampleVehicles is the fixed scene of the demo image.
var sampleVehicles = []counting.Detection{
	{Class: counting.Car, Confidence: 0.94, Box: image.Rect(100, 200, 180, 240)},
	{Class: counting.Car, Confidence: 0.91, Box: image.Rect(250, 190, 330, 230)},
	{Class: counting.Truck, Confidence: 0.88, Box: image.Rect(400, 185, 520, 245)},
	{Class: counting.Car, Confidence: 0.96, Box: image.Rect(50, 250, 130, 290)},
	{Class: counting.Car, Confidence: 0.89, Box: image.Rect(200, 260, 280, 300)},
	{Class: counting.Car, Confidence: 0.93, Box: image.Rect(350, 255, 430, 295)},
	{Class: counting.Car, Confidence: 0.86, Box: image.Rect(500, 245, 580, 285)},
}

// Sample writes the synthetic highway image to out unless it already exists.
func Sample(out string) error {
	if _, err := os.Stat(out); err == nil {
		return nil
	}

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	p := &painter{img: &img}
	p.rect(image.Rect(0, 0, 640, 480), color.RGBA{R: 40, G: 40, B: 40, A: 0}, -1)
	p.rect(image.Rect(0, 180, 640, 300), color.RGBA{R: 70, G: 70, B: 70, A: 0}, -1)
	for x := 0; x < 640; x += 40 {
		p.rect(image.Rect(x, 235, x+20, 245), color.RGBA{R: 200, G: 200, B: 200, A: 0}, -1)
	}
	drawDetections(p, sampleVehicles)
	if p.err != nil {
		return fmt.Errorf("failed to draw sample image: %w", p.err)
	}

	if ok := gocv.IMWrite(out, img); !ok {
		return fmt.Errorf("failed to write sample image %s", out)
	}
	return nil
}
