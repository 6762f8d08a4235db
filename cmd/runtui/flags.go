package main

import "time"

// GlobalFlags decouples cobra parsing from the run logic so tests can
// exercise the logic directly.
type GlobalFlags struct {
	ConfigPath  string
	LogDir      string
	NoUI        bool
	Listen      string
	StopTimeout time.Duration
	Metrics     bool
}
