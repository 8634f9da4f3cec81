// Package engine implements the durable workflow execution engine: a
// stateless driver that advances Execution instances through a Flow's step
// graph, persisting state between steps via a pluggable Store so that
// instances may pause, wait, retry, be cancelled, spawn children, and resume
// across process restarts.
package engine
