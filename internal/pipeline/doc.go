// Package pipeline runs the per-cycle flow of the radar engine.
//
// Each cycle fills the current surface from a sensor frame, finds the
// stationary cells by motion compensation against the past surface, groups
// them, aggregates the groups into object records and finally advances the
// grid so the current surface becomes the past. The package is the
// composition root for grid, motion, cluster and objects; none of those
// import pipeline.
package pipeline
