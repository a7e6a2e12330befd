//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const buildDir = "build/bin"

var Aliases = map[string]interface{}{
	"test":      Test.All,
	"test-race": Test.Race,
	"vet":       QC.Vet,
	"tidy":      QC.Tidy,
	"cli":       Build.CLI,
	"app":       Build.App,
	"clean":     Clean,
}

// ===============================
// Quality Checks
// ===============================

type QC mg.Namespace

// Runs go vet
func (QC) Vet() error {
	fmt.Println("\n🔎 Running go vet...")
	return sh.RunV("go", "vet", "./...")
}

// Tidies go.mod and go.sum
func (QC) Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// ===============================
// Tests
// ===============================

type Test mg.Namespace

// Runs all Go tests
func (Test) All() error {
	fmt.Println("\n🧪 Running tests...")
	return sh.RunV("go", "test", "./...")
}

// Runs all Go tests with the race detector
func (Test) Race() error {
	fmt.Println("\n🧪 Running tests with -race...")
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// ===============================
// Build
// ===============================

type Build mg.Namespace

// Builds the command line client
func (Build) CLI() error {
	mg.Deps(QC.Vet)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}
	fmt.Println("\n🔨 Building analytics CLI...")
	return sh.RunV("go", "build", "-o", buildDir+"/analytics", "./cmd/analytics")
}

// Builds the desktop app with wails
func (Build) App() error {
	mg.Deps(QC.Vet)
	fmt.Println("\n🔨 Building desktop app...")
	return sh.RunV("wails", "build", "-clean")
}

// Removes build artifacts
func Clean() error {
	fmt.Println("\n🧹 Cleaning build directory...")
	return sh.Rm("build")
}
