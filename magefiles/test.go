//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const coverageFile = "coverage.out"

// Test groups test targets.
type Test mg.Namespace

// All runs every test with the race detector.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Unit runs the tests below $PKG (default ./...) verbosely.
func (Test) Unit() error {
	pkg := os.Getenv("PKG")
	if pkg == "" {
		pkg = "./..."
	}
	return sh.RunV(binGo, "test", "-v", pkg)
}

// Cover writes coverage.out and prints per-function coverage.
func (Test) Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile="+coverageFile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+coverageFile)
}
