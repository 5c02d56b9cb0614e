package comparator

import "errors"

// ErrShortValue is returned when a comparand or freshly-read buffer is
// too short for the data type's fixed width.
var ErrShortValue = errors.New("comparator: value shorter than type width")
