//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with config.toml from the repository root.
func (Run) Engine() error {
	mg.Deps(Build.Engine)
	fmt.Println("Run engine...")
	_, err := executeCmd("bin/framekeeper", withArgs("-config", "config.toml"), withStream())
	return err
}

type Test mg.Namespace

// Runs every package test with the race detector. The Vulkan backend is
// not exercised; the frame core runs against the simulated device.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}
