// Package report defines the core types shared by the document assembly
// pipeline: the generation request, rendered sections, the assembly plan,
// run records, and the interfaces the pipeline stages are built against.
package report
