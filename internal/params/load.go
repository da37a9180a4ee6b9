package params

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/orbitsplat/internal/ir"
)

// LoadTraining reads a .cue, .yaml or .yml parameter file. Fields the file
// leaves out keep their defaults; the result is validated with NewTraining.
func LoadTraining(path string) (Training, error) {
	data, ext, err := readParamFile(path)
	if err != nil {
		return Training{}, err
	}

	var t Training
	switch ext {
	case ".cue":
		values, err := decodeCUE(path, data, TrainingDefinition, TrainingFields)
		if err != nil {
			return Training{}, err
		}
		t = TrainingFromValues(values)
	default:
		t = DefaultTraining()
		if err := decodeYAML(path, data, &t); err != nil {
			return Training{}, err
		}
	}
	return NewTraining(t)
}

// LoadBake reads a bake parameter file the same way LoadTraining does.
func LoadBake(path string) (Bake, error) {
	data, ext, err := readParamFile(path)
	if err != nil {
		return Bake{}, err
	}

	var b Bake
	switch ext {
	case ".cue":
		values, err := decodeCUE(path, data, BakeDefinition, BakeFields)
		if err != nil {
			return Bake{}, err
		}
		b = BakeFromValues(values)
	default:
		b = DefaultBake()
		if err := decodeYAML(path, data, &b); err != nil {
			return Bake{}, err
		}
	}
	return NewBake(b)
}

func readParamFile(path string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".cue", ".yaml", ".yml":
	default:
		return nil, "", ir.NewUserInputError(ir.ErrCodeUnsupportedExtension,
			"parameter files must be .cue, .yaml or .yml",
			map[string]string{"path": path, "extension": ext})
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ir.NewUserInputError(ir.ErrCodeFileNotFound,
			"parameter file not found", map[string]string{"path": path})
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, ext, nil
}

// decodeCUE unifies the file with the named schema definition and returns
// the concrete values it sets.
func decodeCUE(path string, data []byte, definition string, fields []Field) (map[string]float64, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(Schema(), cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(path))
	if err := file.Err(); err != nil {
		return nil, invalidFile(path, err)
	}

	value := schema.LookupPath(cue.ParsePath(definition)).Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, invalidFile(path, err)
	}

	iter, err := value.Fields()
	if err != nil {
		return nil, invalidFile(path, err)
	}
	values := make(map[string]float64)
	for iter.Next() {
		name := iter.Label()
		f, ok := Lookup(fields, name)
		if !ok {
			return nil, invalidFile(path, fmt.Errorf("field %s not allowed", name))
		}
		v := iter.Value()
		if f.Kind == KindBool {
			bv, err := v.Bool()
			if err != nil {
				return nil, invalidFile(path, err)
			}
			values[name] = boolValue(bv)
			continue
		}
		fv, err := v.Float64()
		if err != nil {
			return nil, invalidFile(path, err)
		}
		values[name] = fv
	}
	return values, nil
}

func decodeYAML(path string, data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		// An empty document leaves every default in place.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalidFile(path, err)
	}
	return nil
}

func invalidFile(path string, err error) error {
	return &ir.Error{
		Kind:    ir.KindUserInput,
		Code:    ir.ErrCodeOutOfRange,
		Message: "invalid parameter file",
		Details: map[string]string{"path": path},
		Err:     err,
	}
}
