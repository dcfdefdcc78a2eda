// Package deffile reads module-definition (.def) files.
package deffile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"

	"github.com/castai/kimportgen/pkg/ordinals"
)

// Matches lines like `    NtClose@4    @ 187 NONAME`. The ordinal must end at a word
// boundary, otherwise `@ 15` with nothing after it would be read as ordinal 1.
var exportLineRegex = regexp.MustCompile(`^\s*@?(\w+)(@\d+)?\s*@\s*(\d+)(\s.*)?$`)

// Read returns the ordinal declarations of a def file in file order. Lines that do not
// declare an ordinal (LIBRARY, EXPORTS, comments) are skipped.
func Read(r io.Reader) ([]ordinals.RawEntry, error) {
	var res []ordinals.RawEntry

	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		entry, ok := ParseLine(scan.Text())
		if !ok {
			continue
		}
		entry.Line = lineNo
		res = append(res, entry)
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("reading def file: %w", err)
	}

	return res, nil
}

// ParseLine matches a single def file line.
func ParseLine(line string) (ordinals.RawEntry, bool) {
	m := exportLineRegex.FindStringSubmatch(line)
	if m == nil {
		return ordinals.RawEntry{}, false
	}
	return ordinals.RawEntry{Name: m[1], Ordinal: m[3]}, true
}
