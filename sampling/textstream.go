package sampling

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TextStream reads samples from lines of the form
//
//	<paddr1> <paddr2> <cycles>
//
// Fields may be separated by spaces, tabs or commas. Addresses are
// hexadecimal with an optional 0x prefix. Blank lines and lines starting with
// '#' are skipped.
type TextStream struct {
	scanner *bufio.Scanner
	line    int
}

// NewTextStream creates a TextStream that reads from r.
func NewTextStream(r io.Reader) *TextStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	return &TextStream{scanner: scanner}
}

// Next parses the next record.
func (s *TextStream) Next() (Sample, error) {
	for s.scanner.Scan() {
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		sample, err := ParseRecord(text)
		if err != nil {
			return Sample{}, fmt.Errorf("line %d: %w", s.line, err)
		}

		return sample, nil
	}

	if err := s.scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("line %d: %v: %w",
			s.line+1, err, ErrMalformedInput)
	}

	return Sample{}, io.EOF
}

// Line returns the number of the last line read.
func (s *TextStream) Line() int {
	return s.line
}

// ParseRecord parses one "<paddr1> <paddr2> <cycles>" record.
func ParseRecord(text string) (Sample, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	if len(fields) != 3 {
		return Sample{}, fmt.Errorf("expected 3 fields, got %d: %w",
			len(fields), ErrMalformedInput)
	}

	a, err := parseHex(fields[0])
	if err != nil {
		return Sample{}, err
	}

	b, err := parseHex(fields[1])
	if err != nil {
		return Sample{}, err
	}

	cycles, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("cycle count %q: %w",
			fields[2], ErrMalformedInput)
	}

	return Sample{Addr1: a, Addr2: b, Cycles: cycles}, nil
}

func parseHex(field string) (uint64, error) {
	digits := strings.TrimPrefix(strings.ToLower(field), "0x")

	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", field, ErrMalformedInput)
	}

	return v, nil
}

// FormatRecord renders a sample in the format TextStream reads.
func FormatRecord(s Sample) string {
	return fmt.Sprintf("0x%x 0x%x %d", s.Addr1, s.Addr2, s.Cycles)
}
