//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import "github.com/magefile/mage/sh"

const (
	binLint     = "golangci-lint"
	lintTimeout = "5m"
)

// Lint runs go vet, then golangci-lint, over every attic package.
func Lint() error {
	if err := sh.RunV(binGo, "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV(binLint, "run", "--timeout", lintTimeout, "./...")
}
