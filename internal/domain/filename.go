package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// UniqueFilename returns name, or the first of name_1.ext, name_2.ext, ... for which
// taken reports false.
func UniqueFilename(name string, taken func(string) (bool, error)) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = base + "_" + strconv.Itoa(i) + ext
	}
}
