// Package snapshot encodes the observable simulator state so an out-of-process
// renderer can draw it.
package snapshot

import (
	"fmt"
	"os"

	"memsim/pkg/interpreter"

	"github.com/fxamacker/cbor/v2"
)

// canonical mode keeps encodings byte-stable for identical states
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes a view to CBOR bytes.
func Marshal(v interpreter.View) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal deserializes a view from CBOR bytes.
func Unmarshal(data []byte) (interpreter.View, error) {
	var v interpreter.View
	if err := cbor.Unmarshal(data, &v); err != nil {
		return interpreter.View{}, fmt.Errorf("snapshot: unmarshal view: %w", err)
	}
	return v, nil
}

// Capture encodes the current state of it.
func Capture(it *interpreter.Interpreter) ([]byte, error) {
	return Marshal(it.View())
}

// WriteFile captures it and writes the encoding to path.
func WriteFile(path string, it *interpreter.Interpreter) error {
	data, err := Capture(it)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes a snapshot written by WriteFile.
func ReadFile(path string) (interpreter.View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return interpreter.View{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
