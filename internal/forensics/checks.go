package forensics

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/jpeg"
	"math"
	"math/rand"
	"sort"
)

const elaQuality = 60

// checkErrorLevel re-encodes the image at a low JPEG quality and measures
// where the original deviates from the re-encode. Locally edited regions
// compress differently and light up in the diff.
func checkErrorLevel(img image.Image, _ []byte) (float64, string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: elaQuality}); err != nil {
		return 0, "", fmt.Errorf("re-encode: %w", err)
	}
	recoded, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return 0, "", fmt.Errorf("decode re-encode: %w", err)
	}

	bounds := img.Bounds()
	total := 0
	high := 0
	const diffThreshold = 32
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, _ := img.At(x, y).RGBA()
			r2, g2, b2, _ := recoded.At(x, y).RGBA()
			diff := absDiff(r1, r2) + absDiff(g1, g2) + absDiff(b1, b2)
			// channel values are 16-bit here; scale back to 8-bit space
			if diff/257/3 > diffThreshold {
				high++
			}
			total++
		}
	}
	if total == 0 {
		return 0, "", fmt.Errorf("empty image")
	}
	ratio := float64(high) / float64(total)
	return elaSuspicion(ratio), fmt.Sprintf("high-diff pixel ratio %.4f", ratio), nil
}

// elaSuspicion maps the high-diff pixel ratio to a suspicion score.
// Monotone non-decreasing in the ratio.
func elaSuspicion(ratio float64) float64 {
	return clamp(ratio*500, 0, 100)
}

// checkEdgeDensity compares edge density across the four quadrants. A
// pasted region shifts the balance and inflates the coefficient of
// variation.
func checkEdgeDensity(img image.Image, _ []byte) (float64, string, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 4 || h < 4 {
		return 0, "", fmt.Errorf("image too small")
	}
	gray := toGray(img)
	midX, midY := w/2, h/2
	densities := make([]float64, 4)
	counts := make([]int, 4)
	const edgeThreshold = 24
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			dx := int(gray[y][x+1]) - int(gray[y][x-1])
			dy := int(gray[y+1][x]) - int(gray[y-1][x])
			quadrant := 0
			if x >= midX {
				quadrant++
			}
			if y >= midY {
				quadrant += 2
			}
			counts[quadrant]++
			if abs(dx)+abs(dy) > edgeThreshold {
				densities[quadrant]++
			}
		}
	}
	var mean float64
	for i := range densities {
		if counts[i] > 0 {
			densities[i] /= float64(counts[i])
		}
		mean += densities[i]
	}
	mean /= 4
	if mean == 0 {
		return 0, "no edges detected", nil
	}
	var variance float64
	for _, d := range densities {
		variance += (d - mean) * (d - mean)
	}
	cv := math.Sqrt(variance/4) / mean
	return clamp(cv*80, 0, 100), fmt.Sprintf("quadrant edge-density cv %.3f", cv), nil
}

const temperatureStrips = 8

// checkColorTemperature splits the image into horizontal strips and
// compares their warmth (mean red minus blue). A region pasted from a
// different source drifts the strip it lands in.
func checkColorTemperature(img image.Image, _ []byte) (float64, string, error) {
	bounds := img.Bounds()
	h := bounds.Dy()
	if h < temperatureStrips {
		return 0, "", fmt.Errorf("image too small")
	}
	stripHeight := h / temperatureStrips
	warmth := make([]float64, 0, temperatureStrips)
	for s := 0; s < temperatureStrips; s++ {
		top := bounds.Min.Y + s*stripHeight
		bottom := top + stripHeight
		var sum float64
		count := 0
		for y := top; y < bottom; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, _, b, _ := img.At(x, y).RGBA()
				sum += (float64(r) - float64(b)) / 257
				count++
			}
		}
		if count > 0 {
			warmth = append(warmth, sum/float64(count))
		}
	}
	if len(warmth) == 0 {
		return 0, "", fmt.Errorf("empty image")
	}
	lo, hi := warmth[0], warmth[0]
	for _, wv := range warmth[1:] {
		lo = math.Min(lo, wv)
		hi = math.Max(hi, wv)
	}
	spread := hi - lo
	return clamp(spread*1.5, 0, 100), fmt.Sprintf("strip warmth spread %.2f", spread), nil
}

// checkRecompression encodes the image at descending qualities and checks
// the size fall-off. Screenshots straight from a portal shrink steeply;
// material that was already re-saved barely shrinks.
func checkRecompression(img image.Image, _ []byte) (float64, string, error) {
	sizes := make([]int, 0, 3)
	for _, quality := range []int{90, 70, 50} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return 0, "", fmt.Errorf("encode q%d: %w", quality, err)
		}
		sizes = append(sizes, buf.Len())
	}
	if sizes[0] == 0 {
		return 0, "", fmt.Errorf("empty encode")
	}
	ratio := float64(sizes[2]) / float64(sizes[0])
	suspicion := 0.0
	if sizes[1] > sizes[0] || sizes[2] > sizes[1] {
		suspicion += 50
	}
	if ratio > 0.9 {
		suspicion += (ratio - 0.9) * 500
	}
	return clamp(suspicion, 0, 100), fmt.Sprintf("q50/q90 size ratio %.3f", ratio), nil
}

const (
	patchCount = 12
	patchSize  = 8
)

// checkPatchUniformity samples small patches at positions derived
// deterministically from the image bytes and measures how consistent the
// background tone is across them. Patched-in areas leave the background
// subtly off-color.
func checkPatchUniformity(img image.Image, raw []byte) (float64, string, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= patchSize || h <= patchSize {
		return 0, "", fmt.Errorf("image too small")
	}
	rng := rand.New(rand.NewSource(seedFrom(raw)))
	means := make([]float64, 0, patchCount)
	for i := 0; i < patchCount; i++ {
		px := bounds.Min.X + rng.Intn(w-patchSize)
		py := bounds.Min.Y + rng.Intn(h-patchSize)
		var sum float64
		for y := py; y < py+patchSize; y++ {
			for x := px; x < px+patchSize; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				sum += (float64(r) + float64(g) + float64(b)) / (3 * 257)
			}
		}
		means = append(means, sum/(patchSize*patchSize))
	}
	sort.Float64s(means)
	median := means[len(means)/2]
	var deviation float64
	background := 0
	for _, m := range means {
		if math.Abs(m-median) <= 30 {
			deviation += math.Abs(m - median)
			background++
		}
	}
	if background == 0 {
		return 0, "no background patches", nil
	}
	mad := deviation / float64(background)
	return clamp(mad*10, 0, 100), fmt.Sprintf("background tone deviation %.2f", mad), nil
}

func seedFrom(raw []byte) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write(raw)
	return int64(hasher.Sum64())
}

func toGray(img image.Image) [][]uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray := make([][]uint8, h)
	for y := 0; y < h; y++ {
		gray[y] = make([]uint8, w)
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray[y][x] = uint8((299*r + 587*g + 114*b) / 1000 / 257)
		}
	}
	return gray
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
