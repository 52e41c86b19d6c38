package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Input limits for config files and environment values.
const (
	maxConfigSize = 1 << 20
	maxJSONDepth  = 16
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// checkConfigPath rejects paths the loader will not open: non-JSON files,
// overlong paths and relative paths that climb out of the working directory.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("config path longer than %d bytes", maxPathLen)
	case !strings.EqualFold(filepath.Ext(path), ".json"):
		return fmt.Errorf("config file %s is not .json", path)
	}

	if !filepath.IsAbs(path) {
		parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
		if slices.Contains(parts, "..") {
			return fmt.Errorf("config path %s leaves the working directory", path)
		}
	}
	return nil
}

// readConfigFile reads a regular file no larger than maxConfigSize.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config path %s is not a regular file", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit %d", path, info.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

// checkEnvValue bounds an environment value before it is parsed.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s is %d bytes, limit %d", key, len(value), maxEnvVarLen)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}

// validateJSONDepth walks the token stream and fails on malformed input or
// nesting deeper than maxJSONDepth.
func validateJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nested %d levels, limit %d", depth, maxJSONDepth)
			}
		default:
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("JSON ends inside %d open containers", depth)
	}
	return nil
}
