package recognize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// maxRasterDim bounds the longer image side before OCR; phone photos can be
// huge and the engines gain nothing past this resolution.
const maxRasterDim = 2000

func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// Downscale shrinks img so its longer side is at most maxRasterDim.
func Downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= maxRasterDim {
		return img
	}
	scale := float64(maxRasterDim) / float64(longer)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// GaussianBlur applies a separable 5x5 binomial kernel, a close stand-in for
// cv2.GaussianBlur(img, (5,5), 0).
func GaussianBlur(src *image.Gray) *image.Gray {
	kernel := [5]int{1, 4, 6, 4, 1} // sums to 16
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	tmp := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				xx := clamp(x+k, 0, w-1)
				sum += int(src.GrayAt(xx, y).Y) * kernel[k+2]
			}
			tmp.SetGray(x, y, color.Gray{Y: uint8(sum / 16)})
		}
	}
	dst := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				yy := clamp(y+k, 0, h-1)
				sum += int(tmp.GrayAt(x, yy).Y) * kernel[k+2]
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / 16)})
		}
	}
	return dst
}

// OtsuThreshold binarizes with a global threshold maximizing between-class
// variance. Best for printed or otherwise clean content.
func OtsuThreshold(src *image.Gray) *image.Gray {
	var hist [256]int
	b := src.Bounds()
	total := b.Dx() * b.Dy()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			hist[src.GrayAt(x, y).Y]++
		}
	}

	var sumAll int
	for i, n := range hist {
		sumAll += i * n
	}

	var sumB, wB int
	var maxVar float64
	threshold := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += t * hist[t]
		mB := float64(sumB) / float64(wB)
		mF := float64(sumAll-sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > maxVar {
			maxVar = between
			threshold = t
		}
	}

	dst := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if int(src.GrayAt(x, y).Y) > threshold {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
}

// AdaptiveThreshold binarizes against a local window mean, which copes with
// the uneven lighting typical of handwriting photos.
func AdaptiveThreshold(src *image.Gray, window, c int) *image.Gray {
	if window%2 == 0 {
		window++
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	// Integral image for O(1) window sums.
	integral := make([][]int, h+1)
	for i := range integral {
		integral[i] = make([]int, w+1)
	}
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			row += int(src.GrayAt(x, y).Y)
			integral[y+1][x+1] = integral[y][x+1] + row
		}
	}

	half := window / 2
	dst := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := clamp(x-half, 0, w-1), clamp(y-half, 0, h-1)
			x1, y1 := clamp(x+half, 0, w-1), clamp(y+half, 0, h-1)
			area := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / area
			if int(src.GrayAt(x, y).Y) > mean-c {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
}

// BottomRegion crops the bottom fraction of the image, where final boxed or
// checkmarked answers usually sit.
func BottomRegion(img image.Image, frac float64) image.Image {
	b := img.Bounds()
	top := b.Min.Y + int(float64(b.Dy())*(1-frac))
	crop := image.Rect(b.Min.X, top, b.Max.X, b.Max.Y)

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, crop.Min, xdraw.Src)
	return dst
}

// PreprocessHandwriting is the adaptive pipeline for freeform handwriting:
// grayscale, blur, adaptive thresholding.
func PreprocessHandwriting(img image.Image) *image.Gray {
	return AdaptiveThreshold(GaussianBlur(Grayscale(Downscale(img))), 11, 2)
}

// PreprocessPrinted is the global pipeline for printed or clean equations:
// grayscale plus Otsu thresholding.
func PreprocessPrinted(img image.Image) *image.Gray {
	return OtsuThreshold(Grayscale(Downscale(img)))
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
