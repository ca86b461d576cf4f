package format

import "errors"

var (
	// ErrSignatureMismatch indicates a header had an unexpected magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrBoundsCheck indicates a buffer access exceeded bounds.
	ErrBoundsCheck = errors.New("format: buffer bounds exceeded")
	// ErrSanityLimit indicates a decoded value exceeded sanity limits, guarding
	// against integer overflow and excessive allocation on corrupt input.
	ErrSanityLimit = errors.New("format: value exceeds sanity limit")
	// ErrIntegerOverflow indicates an arithmetic operation would overflow.
	ErrIntegerOverflow = errors.New("format: integer overflow")
	// ErrChecksumMismatch indicates a header's stored CRC32 does not match its contents.
	ErrChecksumMismatch = errors.New("format: checksum mismatch")
	// ErrUnsupportedVersion indicates a header declares a version this build cannot read.
	ErrUnsupportedVersion = errors.New("format: unsupported version")
)
