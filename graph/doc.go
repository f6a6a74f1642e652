// Package graph implements the shared neuron graph.
//
// This package contains:
//   - Neuron and its closed set of payload kinds (values, clusters,
//     variables, instruction and statement nodes)
//   - Typed links and cluster membership, guarded per neuron
//   - Brain, the ID-addressed arena that owns every durable neuron
//   - The temp pool for provisional values and its periodic sweeper
//   - Time and time-span cluster helpers
package graph
