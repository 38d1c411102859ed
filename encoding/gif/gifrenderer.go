// Package gif renders the latent record of a simulation as an animated GIF,
// one frame per epoch.
package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/impression-learning/impression/sim"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/tensor/native"
)

var regular *truetype.Font

const (
	dpi             = 144.0
	fontsize        = 12.0
	lineheight      = 1.2
	captionLines    = 3
	dummyLongString = `Epoch 100000, Steps: 100000`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// globPalette is 256 shades of gray, black first.
var globPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{uint8(i)}
	}
	return p
}()

// Encoder draws the latent record as a raster, neurons down and time across,
// under a caption with the run name, the epoch and the mean loss. It
// implements sim.OutputEncoder.
type Encoder struct {
	H, W int
	Cell int // pixels per neuron and step
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	maxH, maxW  int // maxHeight and maxWidth
	padH, padW  int // padding so everything don't start at the topleft
	initialized bool
}

// NewGifEncoder with maximum height and width
func NewGifEncoder(h, w int) *Encoder {
	return &Encoder{
		H:    -1,
		W:    -1,
		Cell: 4,
		maxH: h,
		maxW: w,
		padH: 10,
		padW: 10,

		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: -1},
	}
}

// Encode adds a frame for the state of the simulation.
func (enc *Encoder) Encode(ms sim.MetaState) error {
	rec := ms.Record()
	if rec == nil || rec.Latent == nil {
		return errors.New("nothing recorded")
	}
	latent, err := native.MatrixF64(rec.Latent)
	if err != nil {
		return errors.WithStack(err)
	}
	rows, cols := rec.Latent.Shape()[0], rec.Latent.Shape()[1]
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))

	if !enc.initialized {
		// lazy init of specifications
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Face = enc.face

		textW := maxInt(font.MeasureString(enc.Face, ms.Name()).Ceil(), font.MeasureString(enc.Face, dummyLongString).Ceil())
		w := maxInt(textW, cols*enc.Cell) + 2*enc.padW
		h := captionLines*dy + rows*enc.Cell + 2*enc.padH

		w = minInt(w, enc.maxW)
		h = minInt(h, enc.maxH)
		if w == enc.maxW {
			enc.padW = 0
		}
		if h == enc.maxH {
			enc.padH = 0
		}
		enc.H = h
		enc.W = w
		enc.initialized = true
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)

	y := enc.padH + dy
	enc.Dst = im
	for _, s := range []string{
		ms.Name(),
		fmt.Sprintf("Epoch %d, Steps: %d", ms.Epoch(), ms.Steps()),
		fmt.Sprintf("Mean loss: %.4g", rec.MeanLoss()),
	} {
		enc.Dot = fixed.P(enc.padW, y)
		enc.DrawString(s)
		y += dy
	}

	top := enc.padH + captionLines*dy
	for i := 0; i < rows; i++ {
		for t := 0; t < cols; t++ {
			idx := intensity(float32(latent[i][t]))
			for py := 0; py < enc.Cell; py++ {
				for px := 0; px < enc.Cell; px++ {
					im.SetColorIndex(enc.padW+t*enc.Cell+px, top+i*enc.Cell+py, idx)
				}
			}
		}
	}

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, 50)
	return nil
}

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if len(enc.out.Image) == 0 {
		return errors.New("no frames to write")
	}
	return gif.EncodeAll(enc.Writer, enc.out)
}

// intensity maps an activity to a gray level through the logistic function.
// Undefined activity is mid gray.
func intensity(v float32) uint8 {
	if math32.IsNaN(v) {
		return 128
	}
	s := 1 / (1 + math32.Exp(-v))
	return uint8(s*255 + 0.5)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
