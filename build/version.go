package build

// Version is the current version of the stars server, returned by the
// getversion built-in and shown in the CLI help and the startup log line.
// STARS nodes do not negotiate protocol versions with each other.
const Version = "1.0.0"
