// Package module compiles named bundles of neurons into a Brain and retracts
// them again, keeping per-neuron module reference counts.
package module

import (
	"errors"

	"github.com/chazu/nnl/graph"
)

var (
	// ErrModuleNotFound is returned for names the registry does not hold.
	ErrModuleNotFound = errors.New("module: not found")
	// ErrCompileFailed wraps the errors of a failed compile session.
	ErrCompileFailed = errors.New("module: compile failed")
)

// Module is one compilation unit's contribution to a Brain.
type Module struct {
	Name           string
	FileNames      []string
	ExtensionFiles []string

	// Neurons holds one reference-count share of each listed neuron.
	Neurons []graph.ID
	// ExternalRefs are used but not owned, for example link meanings.
	ExternalRefs []graph.ID
	// LibRefs bind names to host-provided functions.
	LibRefs []LibRef
}

// LibRef is a reference to an external function bound by name.
type LibRef struct {
	Name   string
	Target string
}

// New creates an empty module.
func New(name string, files ...string) *Module {
	return &Module{Name: name, FileNames: files}
}

// Owns reports whether the module holds a share of id.
func (m *Module) Owns(id graph.ID) bool {
	for _, n := range m.Neurons {
		if n == id {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the module contributes nothing.
func (m *Module) IsEmpty() bool {
	return len(m.Neurons) == 0 && len(m.ExternalRefs) == 0 && len(m.LibRefs) == 0
}

// GetLogger returns the module package logger.
func GetLogger() graph.Logger {
	return graph.GetLogger("nnl.module")
}
