// Package workspace manages per-build scratch directories.
//
// Each build gets a directory named after its build hash under a common base
// directory. Directories are removed when the build finishes; Sweep removes
// leftovers from workers that were killed before they could clean up.
package workspace
