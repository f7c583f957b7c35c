// Package persist implements spec §4.8's Persistence (C7): the
// line-oriented, tab-separated, CRC32-protected state file format, and
// the crash-safe atomic write procedure. Loading never returns an
// "Input" class error to the caller — a corrupt or incompatible file is
// quarantined and an empty State is handed back instead, matching the
// propagation policy of spec §7.
package persist

const (
	tagPreload = "PRELOAD"
	tagMap     = "MAP"
	tagBadExe  = "BADEXE"
	tagExe     = "EXE"
	tagExeMap  = "EXEMAP"
	tagMarkov  = "MARKOV"
	tagFamily  = "FAMILY"
	tagCRC32   = "CRC32"
)

const reserved = -1
