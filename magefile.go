//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the bench CLI into ./bin.
func Build() error {
	mg.Deps(Vet)
	fmt.Println("Building pulse-bench...")
	return sh.RunV("go", "build", "-o", "./bin/pulse-bench", "./cmd/pulse-bench")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Simulate runs a short acquisition and analysis against the simulated scope.
func Simulate() error {
	mg.Deps(Build)
	if err := sh.RunV("./bin/pulse-bench", "acquire", "-simulate", "-count", "200", "-output", "./data/sim-waveforms.csv"); err != nil {
		return err
	}
	return sh.RunV("./bin/pulse-bench", "analyze", "-input", "./data/sim-waveforms.csv")
}

func Clean() error {
	return sh.Rm("./bin")
}
