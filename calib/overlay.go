package calib

import (
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// renderOverlay draws the observed points (crosses) and the reprojected
// object points (discs) on top of the source image so a human can verify the
// solved pose, and writes the result next to the source image.
func renderOverlay(imgPath string, observed, reprojected []r2.Point) error {
	img, err := gg.LoadImage(imgPath)
	if err != nil {
		return errors.Wrapf(err, "loading %s", imgPath)
	}
	dc := gg.NewContextForImage(img)

	dc.SetRGB(1, 0, 0)
	for _, p := range reprojected {
		dc.DrawCircle(p.X, p.Y, 8)
		dc.Fill()
	}
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(2)
	for _, p := range observed {
		dc.DrawLine(p.X-8, p.Y, p.X+8, p.Y)
		dc.DrawLine(p.X, p.Y-8, p.X, p.Y+8)
		dc.Stroke()
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawString("green cross: observed point", 20, 20)
	dc.DrawString("red disc: reprojected object point", 20, 40)

	base := strings.TrimSuffix(imgPath, filepath.Ext(imgPath))
	return dc.SavePNG(base + "_reproj.png")
}
