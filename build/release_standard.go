//go:build !dev && !testing

package build

// Release is the build type for the current compilation.
const Release = "standard"

// DEBUG indicates whether the program was compiled with extra safety checks
// enabled.
const DEBUG = false
