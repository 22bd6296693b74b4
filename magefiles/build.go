//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Build targets for attic.
//
//	mage build       Compile the attic binary to bin/
//	mage install     Install attic to GOPATH/bin
//	mage test:all    Run every test
//	mage test:unit   Run tests of one package tree (PKG, default ./...)
//	mage test:cover  Write coverage.out and print per-function coverage
//	mage lint        Run go vet and golangci-lint
//	mage stats       Print Go line counts as JSON
//	mage clean       Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "attic"
	binaryDir  = "bin"
	cmdDir     = "./cmd/attic"
)

// Build compiles the attic binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	for _, path := range []string{binaryDir, coverageFile} {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
