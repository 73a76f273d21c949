package modem

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// rateConverter converts mono audio between two rates. A nil converter is a
// passthrough.
type rateConverter struct {
	r resampling.Resampler
}

func newRateConverter(from, to float64) (*rateConverter, error) {
	if from == to {
		return nil, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  from,
		OutputRate: to,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler %g -> %g: %w", from, to, err)
	}
	return &rateConverter{r: r}, nil
}

// process converts one chunk of a continuous stream.
func (c *rateConverter) process(in []float64) ([]float64, error) {
	if c == nil {
		return in, nil
	}
	out, err := c.r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return out, nil
}

// convertAll resamples a complete signal, flushing the filter tail.
func convertAll(in []float64, from, to float64) ([]float64, error) {
	c, err := newRateConverter(from, to)
	if err != nil || c == nil {
		return in, err
	}
	out, err := c.process(in)
	if err != nil {
		return nil, err
	}
	tail, err := c.r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	return append(out, tail...), nil
}
