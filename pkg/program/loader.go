package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrEmptyProgram = errors.New("program has no functions")

type programFile struct {
	Functions []Source `yaml:"functions"`
}

// Load reads a YAML program file:
//
//	functions:
//	  - name: main
//	    lines:
//	      - "function main() {"
//	      - "  let buffer = malloc(1024);"
//	      - "  return 0;"
//	      - "}"
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("program: cannot read %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("program: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML program document.
func Parse(data []byte) (*Program, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var raw programFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyProgram
		}
		return nil, fmt.Errorf("parse: %w", err)
	}

	if len(raw.Functions) == 0 {
		return nil, ErrEmptyProgram
	}

	seen := make(map[string]bool, len(raw.Functions))
	for i, fn := range raw.Functions {
		if fn.Name == "" {
			return nil, fmt.Errorf("function %d has no name", i)
		}
		if seen[fn.Name] {
			return nil, fmt.Errorf("function %q declared twice", fn.Name)
		}
		seen[fn.Name] = true
	}

	return New(raw.Functions...), nil
}

// Marshal encodes the program back to YAML.
func Marshal(p *Program) ([]byte, error) {
	return yaml.Marshal(programFile{Functions: p.Sources()})
}
