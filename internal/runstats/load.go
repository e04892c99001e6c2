package runstats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	return data, nil
}

// ReadFileMmap maps path and copies it out so the mapping can be released before
// records are decoded.
func ReadFileMmap(path string) ([]byte, error) {
	mm, err := mmap.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("mmap.Open: %w", err)}
	}
	defer mm.Close()

	data := make([]byte, mm.Len())
	if _, err := io.ReadFull(io.NewSectionReader(mm, 0, int64(mm.Len())), data); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("read mmap: %w", err)}
	}
	return data, nil
}

// SplitArray checks that data is a single JSON array and returns its elements undecoded.
func SplitArray(data []byte) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	err := json.Unmarshal(data, &elems)
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return nil, fmt.Errorf("top-level value is %s, not an array", jsonKind(bytes.TrimSpace(data)[0]))
	case err != nil:
		return nil, fmt.Errorf("invalid JSON: %w", err)
	case elems == nil:
		// null decodes into a nil slice without error
		return nil, errors.New("top-level value is null, not an array")
	}
	return elems, nil
}

func jsonKind(first byte) string {
	switch first {
	case '{':
		return "an object"
	case '"':
		return "a string"
	case 't', 'f':
		return "a boolean"
	case 'n':
		return "null"
	default:
		return "a number"
	}
}
