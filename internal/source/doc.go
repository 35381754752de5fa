// Package source defines the boundary between the pipeline and whatever
// produces raw bulk artifacts. The pipeline only ever sees the Provider
// interface; the bundled DirProvider serves deployments where an external
// job drops CSV extracts into a directory.
package source
