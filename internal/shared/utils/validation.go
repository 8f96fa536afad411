package utils

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
)

// Size limits (in bytes)
const (
	MaxJSONSize   = 1 * 1024 * 1024 // 1MB - maximum JSON payload size
	MaxScriptSize = 256 * 1024      // 256KB - guest script size limit
)

// ErrInvalidScript is returned for script sources that cannot be executed
var ErrInvalidScript = errors.New("invalid script")

// JSONSizeValidator checks inbound JSON frames before they are decoded
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !sonic.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	return nil
}

// ValidateScript checks a guest or host script source. Sources must be
// non-empty UTF-8 text no larger than maxSize; maxSize <= 0 uses
// MaxScriptSize.
func ValidateScript(source []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = MaxScriptSize
	}
	if len(strings.TrimSpace(string(source))) == 0 {
		return fmt.Errorf("%w: script is empty", ErrInvalidScript)
	}
	if len(source) > maxSize {
		return fmt.Errorf("%w: script size %d bytes exceeds maximum %d bytes", ErrInvalidScript, len(source), maxSize)
	}
	if !utf8.Valid(source) {
		charset := "unknown"
		if result, err := chardet.NewTextDetector().DetectBest(source); err == nil && result != nil {
			charset = result.Charset
		}
		return fmt.Errorf("%w: script is not UTF-8 (detected %s)", ErrInvalidScript, charset)
	}
	if strings.Contains(string(source), "\x00") {
		return fmt.Errorf("%w: script contains null bytes", ErrInvalidScript)
	}
	if mtype := mimetype.Detect(source); !isText(mtype) {
		return fmt.Errorf("%w: script looks like %s", ErrInvalidScript, mtype.String())
	}
	return nil
}

// isText reports whether mtype or one of its parents is a text format
func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		media, _, err := mime.ParseMediaType(m.String())
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(media, "text/"):
			return true
		case media == "application/json", media == "application/javascript", media == "application/xml":
			return true
		}
	}
	return false
}
