// Package evgen assembles and drives the stochastic event-sampling loop
// around an opaque interaction generator engine.
//
// # Reading Guide
//
// Start with these three files to understand the driver:
//   - config.go: the immutable run configuration and source-type dispatch tags
//   - driver.go: assembly (Initialize), the per-call sampling loop (SampleOnce),
//     and teardown (Close)
//   - spill.go: the exposure/event accounting that decides spill boundaries
//
// # Architecture
//
// The evgen package defines the collaborator interfaces and the strategy
// types; reference implementations live in sub-packages:
//   - evgen/geom/: in-memory box-volume geometry service
//   - evgen/engine/: reference generator engine (registered via NewEngineFunc)
//   - evgen/trace/: per-sample and per-spill decision trace
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewEngineFunc).
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - FluxSource: one candidate ray per Advance, plus exposure bookkeeping
//   - FlavorMixer: post-hoc species remapping, extensible via RegisterMixer
//   - GeometryService: volume lookup, selector installation, path-length scans
//   - GeneratorEngine: produce one interaction candidate per call
package evgen
