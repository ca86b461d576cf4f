package codec

import "errors"

var (
	// ErrTruncated indicates the buffer ended before a declared length was satisfied.
	ErrTruncated = errors.New("codec: truncated value")
	// ErrUnknownTag indicates a tag byte this build does not recognize.
	ErrUnknownTag = errors.New("codec: unknown tag")
	// ErrInvalidUTF8 indicates a string tag's payload was not valid UTF-8.
	ErrInvalidUTF8 = errors.New("codec: invalid UTF-8 in string value")
)
