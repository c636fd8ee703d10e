package uploader

import (
	"fmt"
	"strings"

	"github.com/binghezhouke/123/internal/pan"
)

// maxFilenameBytes is the vendor's filename length ceiling, measured in
// UTF-8 bytes, not runes.
const maxFilenameBytes = 255

// forbiddenChars are rejected anywhere in a filename. The separator is
// listed separately so directory-qualified mode can permit it.
const (
	forbiddenChars = `"\:*?|><`
	pathSeparator  = "/"
)

// ValidateFilename rejects names the pre-upload endpoint would refuse:
// empty names, names over 255 UTF-8 bytes, and names containing
// path-breaking characters. When allowDirQualified is true the path
// separator is permitted (the create call then sets containDir), but the
// rest of the forbidden set still applies.
func ValidateFilename(name string, allowDirQualified bool) error {
	if name == "" {
		return fmt.Errorf("%w: filename must not be empty", pan.ErrValidation)
	}

	if len(name) > maxFilenameBytes {
		return fmt.Errorf("%w: filename exceeds %d bytes: %q", pan.ErrValidation, maxFilenameBytes, name)
	}

	if strings.ContainsAny(name, forbiddenChars) {
		return fmt.Errorf("%w: filename contains forbidden characters (%s): %q",
			pan.ErrValidation, forbiddenChars, name)
	}

	if !allowDirQualified && strings.Contains(name, pathSeparator) {
		return fmt.Errorf("%w: filename contains path separator: %q", pan.ErrValidation, name)
	}

	return nil
}
