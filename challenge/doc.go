// Package challenge holds the on-disk data of a coding challenge: test
// cases and their comparison rules, case selection expressions, the
// per-challenge challenge.yaml, the directory layout, and per-workdir
// locks that serialise builds and runs of the same solution.
package challenge
