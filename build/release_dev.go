//go:build dev

package build

// Release is the build type for the current compilation.
const Release = "dev"

// DEBUG indicates whether the program was compiled with extra safety checks
// enabled.
const DEBUG = true
