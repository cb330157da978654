package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the magnitude of each non-negative frequency bin of
// data with its mean removed. Bin k is at k/(len(data)*dt) Hz.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n < 2 {
		return nil
	}
	mean := stat.Mean(data, nil)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)
	ps := make([]float64, len(coeff))
	for i, c := range coeff {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency is the frequency in Hz of the strongest non-DC bin of
// data sampled every dt seconds. A constant series has no dominant
// frequency and returns 0.
func DominantFrequency(data []float64, dt float64) float64 {
	ps := PowerSpectrum(data)
	if len(ps) < 2 || dt <= 0 {
		return 0
	}
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if ps[best] < 1e-12 {
		return 0
	}
	fft := fourier.NewFFT(len(data))
	return fft.Freq(best) / dt
}
