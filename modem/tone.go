package modem

import "math"

// goertzel returns the power of integer bin k over the frame x.
func goertzel(x []float64, k int) float64 {
	n := len(x)
	w := 2 * math.Pi * float64(k) / float64(n)
	coeff := 2 * math.Cos(w)

	var s1, s2 float64
	for _, v := range x {
		s0 := v + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// amplitude converts a bin power back to the peak amplitude of a pure tone.
func amplitude(power float64, n int) float64 {
	return 2 * math.Sqrt(max(power, 0)) / float64(n)
}

// addTone mixes a tone at bin k into out, starting at absolute sample pos so
// consecutive symbols of the same bin stay phase continuous.
func addTone(out []float64, pos, k, n int, amp float64) {
	w := 2 * math.Pi * float64(k) / float64(n)
	for i := range out {
		out[i] += amp * math.Sin(w*float64((pos+i)%n))
	}
}
