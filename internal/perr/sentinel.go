package perr

import "errors"

// Scanner (C1) sentinels.
var (
	// ErrProcessVanished indicates a PID disappeared mid-scan; its
	// partially built output must be discarded.
	ErrProcessVanished = errors.New("perr: process vanished during scan")
)

// Persistence (C7) sentinels.
var (
	// ErrHeaderMissing indicates the state file's first line was not a
	// PRELOAD header.
	ErrHeaderMissing = errors.New("perr: state file missing PRELOAD header")
	// ErrCRCMissing indicates the state file had no trailing CRC32 line.
	ErrCRCMissing = errors.New("perr: state file missing CRC32 footer")
	// ErrCRCMismatch indicates the computed CRC32 did not match the
	// footer's recorded value.
	ErrCRCMismatch = errors.New("perr: state file CRC mismatch")
	// ErrDuplicateIndex indicates two records claimed the same sequence id.
	ErrDuplicateIndex = errors.New("perr: duplicate sequence id in state file")
	// ErrDuplicateObject indicates two records described the same Map or Exe.
	ErrDuplicateObject = errors.New("perr: duplicate object in state file")
	// ErrUnknownTag indicates a record line began with an unrecognized tag.
	ErrUnknownTag = errors.New("perr: unknown record tag")
	// ErrMalformedRecord indicates a record had the wrong number of fields
	// or a field that failed to parse.
	ErrMalformedRecord = errors.New("perr: malformed record")
	// ErrMajorVersionMismatch indicates the file's major format version
	// does not match this build; the file is ignored, not quarantined.
	ErrMajorVersionMismatch = errors.New("perr: state file major version mismatch")
)

// Model (C3) sentinels.
var (
	// ErrSelfMarkov indicates an attempt to create a Markov chain between
	// an Exe and itself.
	ErrSelfMarkov = errors.New("perr: markov endpoints must differ")
	// ErrMapRefcountUnderflow indicates a Map's refcount was released more
	// times than it was acquired.
	ErrMapRefcountUnderflow = errors.New("perr: map refcount underflow")
)

// Config sentinels.
var (
	// ErrOutOfDomain indicates a configuration value parsed but fell
	// outside its documented range.
	ErrOutOfDomain = errors.New("perr: configuration value out of domain")
)
