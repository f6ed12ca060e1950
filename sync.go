package spicore

import "periph.io/x/conn/v3/gpio"

// Synchronizer is a chain of flip-flops clocked by the processing clock.
// A signal from another clock domain is only used after it has passed every
// stage [Cummings-CDC|4.1 Two flip-flop synchronizer].
type Synchronizer struct {
	stages []gpio.Level
}

func NewSynchronizer(stages int, init gpio.Level) *Synchronizer {
	s := &Synchronizer{stages: make([]gpio.Level, max(stages, 1))}
	s.Reset(init)
	return s
}

// Sample clocks the chain once with in at the first stage and returns the
// level leaving the last stage.
func (s *Synchronizer) Sample(in gpio.Level) gpio.Level {
	copy(s.stages[1:], s.stages[:len(s.stages)-1])
	s.stages[0] = in
	return s.Out()
}

// Out returns the synchronized level without clocking the chain.
func (s *Synchronizer) Out() gpio.Level {
	return s.stages[len(s.stages)-1]
}

func (s *Synchronizer) Reset(l gpio.Level) {
	for i := range s.stages {
		s.stages[i] = l
	}
}

func (s *Synchronizer) Stages() int { return len(s.stages) }
