package vm

import "github.com/chazu/nnl/graph"

// GetLogger returns the vm package logger.
func GetLogger() graph.Logger {
	return graph.GetLogger("nnl.vm")
}
