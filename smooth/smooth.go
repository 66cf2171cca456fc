package smooth

import fusion "github.com/milosgajdos/go-fusion"

// Smoother smooths a sequence of filtered estimates
type Smoother interface {
	// Smooth returns smoothed estimates of filtered estimates est taken at timestamps ts
	Smooth(est []fusion.Estimate, ts []int64) ([]fusion.Estimate, error)
}
