// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// This is the entry point of the sparrow binary.
package main

import "github.com/sparrowsql/sparrow/pkg/cli"

func main() {
	cli.Main()
}
