// Package testutil holds flags and helpers shared by package tests.
package testutil

import (
	"flag"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests such as full size key generation")

// RequireLong skips t unless -long was given.
func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// PrimeBits returns long when -long was given and short otherwise.
func PrimeBits(short, long int) int {
	if *RunLong {
		return long
	}
	return short
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
