// Package inputfile loads line-oriented, per-cycle input-bus value
// files and whitespace-separated ROM/RAM memory images: plain text
// reusing the netlist literal grammar (parser.ParseLiteral) rather
// than a second, bespoke numeric format.
package inputfile

import (
	"bufio"
	"os"
	"strings"

	"github.com/desfreng/netlist/parser"
	"github.com/pkg/errors"
)

// Source supplies one value per simulated cycle for a single input bus,
// read from a file with one literal per line.
type Source struct {
	values []uint64
}

// Load reads path as a per-cycle value source.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "inputfile: open %s", path)
	}
	defer f.Close()

	var values []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := parser.ParseLiteral(line)
		if err != nil {
			return nil, errors.Wrapf(err, "inputfile: %s", path)
		}
		values = append(values, a.Value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "inputfile: read %s", path)
	}
	return &Source{values: values}, nil
}

// Value returns the value recorded for cycle (0-based), or false if the
// file did not supply enough lines.
func (s *Source) Value(cycle int) (uint64, bool) {
	if cycle < 0 || cycle >= len(s.values) {
		return 0, false
	}
	return s.values[cycle], true
}

// LoadMemoryImage reads path as a whitespace-separated sequence of
// literals, one per memory address in order.
func LoadMemoryImage(path string) ([]uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "inputfile: open %s", path)
	}
	var words []uint64
	for _, tok := range strings.Fields(string(data)) {
		a, err := parser.ParseLiteral(tok)
		if err != nil {
			return nil, errors.Wrapf(err, "inputfile: %s", path)
		}
		words = append(words, a.Value)
	}
	return words, nil
}
