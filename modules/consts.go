package modules

// ServerNodeName is the reserved destination name that addresses the
// server's own built-in command surface and is used as the sender identity
// on every server-originated event and error reply.
const ServerNodeName = "System"

// ErrorCommand is the command token of every server-originated error reply:
// "System Er. <reason>\n".
const ErrorCommand = "Er."

// ReservedLeadingChars are the characters that may not appear as the first
// character of a candidate node name: '.' and '@' are reserved for future
// addressing extensions, '>' is the broadcast-destination sigil.
const ReservedLeadingChars = ".@>"

// BroadcastSigil prefixes a destination token that names a broadcast pattern
// rather than a single node or alias.
const BroadcastSigil = '>'
