package spicore

import (
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// DefaultClock is the processing clock the chip is characterized at.
const DefaultClock = 10 * physic.MegaHertz

type config struct {
	logger logrus.FieldLogger
	stages int
	clock  physic.Frequency
}

func defaultConfig() config {
	return config{
		logger: logrus.StandardLogger(),
		stages: 2,
		clock:  DefaultClock,
	}
}

// Option configures a Chip.
type Option func(*config)

// WithLogger sets the logger transactions are reported to. Completed and
// aborted transactions are logged at debug level, received bytes at trace
// level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSyncStages sets the depth of the input synchronizers (2 or 3).
func WithSyncStages(n int) Option {
	return func(c *config) {
		c.stages = n
	}
}

// WithClock sets the processing clock frequency. It only affects how the
// emulated bus converts an SCK frequency into clock cycles.
func WithClock(f physic.Frequency) Option {
	return func(c *config) {
		c.clock = f
	}
}
