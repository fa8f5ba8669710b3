package retry

import (
	"time"

	"github.com/MiMinions-ai/MiMinions-sub000/config"
)

// PolicyFromConfig builds a Policy from the loaded configuration, falling
// back to defaults for zero values.
func PolicyFromConfig(c config.RetryConfig) Policy {
	p := DefaultPolicy()
	if c.InitialIntervalMS > 0 {
		p.InitialInterval = time.Duration(c.InitialIntervalMS) * time.Millisecond
	}
	if c.MaxIntervalMS > 0 {
		p.MaxInterval = time.Duration(c.MaxIntervalMS) * time.Millisecond
	}
	if c.MaxElapsedTimeMS > 0 {
		p.MaxElapsedTime = time.Duration(c.MaxElapsedTimeMS) * time.Millisecond
	}
	if c.Multiplier > 0 {
		p.Multiplier = c.Multiplier
	}
	if c.Randomization > 0 {
		p.RandomizationFactor = c.Randomization
	}
	return p
}
