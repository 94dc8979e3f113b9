// Package bundler produces a single ES module re-exporting a set of
// resolved packages. It runs inside the isolated worker process:
//
//  1. create a scratch workspace named by the build hash
//  2. write a synthetic package manifest and entry module
//  3. install the packages as production dependencies
//  4. bundle the entry with ES-module-only resolution
//  5. minify, falling back to the unminified code on failure
//  6. remove the workspace
package bundler
