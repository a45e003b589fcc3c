package main

import (
	"io"
	"os"
	"time"

	docconv "github.com/alnah/go-docconv"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now    func() time.Time
	Stdout io.Writer
	Stderr io.Writer
	Getwd  func() (string, error)

	// EngineOptions are appended to the options the convert command
	// builds, so tests can swap the registry or the state store.
	EngineOptions []docconv.Option
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getwd:  os.Getwd,
	}
}
