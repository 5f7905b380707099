// Package report renders the banks found by an inference run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sarchlab/bankfinder/inference"
	"gopkg.in/yaml.v3"
)

// Format selects how banks are rendered.
type Format int

// Supported formats.
const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return FormatText, fmt.Errorf("report: unknown format %q", name)
	}
}

// Document is the structured form of a result.
type Document struct {
	RunID      string     `json:"run_id" yaml:"run_id"`
	Entries    int        `json:"entries" yaml:"entries"`
	Banks      []BankDoc  `json:"banks" yaml:"banks"`
	Conflicts  []Conflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Unassigned []string   `json:"unassigned,omitempty" yaml:"unassigned,omitempty"`
}

// BankDoc lists the physical addresses of one bank, master first.
type BankDoc struct {
	ID        int      `json:"id" yaml:"id"`
	Addresses []string `json:"addresses" yaml:"addresses"`
}

// Conflict names the addresses involved in a conflicting claim.
type Conflict struct {
	Entry       string `json:"entry" yaml:"entry"`
	PriorMaster string `json:"prior_master" yaml:"prior_master"`
	Master      string `json:"master" yaml:"master"`
}

// A Writer writes results to an output.
type Writer struct {
	out    io.Writer
	format Format
	binary bool
}

// NewWriter creates a text writer.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WithFormat sets the output format.
func (w *Writer) WithFormat(f Format) *Writer {
	w.format = f
	return w
}

// WithBinary adds the binary form of each address in text output.
func (w *Writer) WithBinary(binary bool) *Writer {
	w.binary = binary
	return w
}

// Write renders the result.
func (w *Writer) Write(result *inference.Result) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")

		return enc.Encode(NewDocument(result))
	case FormatYAML:
		enc := yaml.NewEncoder(w.out)
		enc.SetIndent(2)

		err := enc.Encode(NewDocument(result))
		if err != nil {
			return err
		}

		return enc.Close()
	default:
		return w.writeText(result)
	}
}

func (w *Writer) writeText(result *inference.Result) error {
	for _, b := range result.Banks {
		_, err := fmt.Fprintf(w.out, "Bank %d\n", b.ID)
		if err != nil {
			return err
		}

		for _, addr := range result.PhysAddrs(b) {
			err = w.writeAddr(addr)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Writer) writeAddr(addr uint64) error {
	var err error

	if w.binary {
		_, err = fmt.Fprintf(w.out, "0x%x\t%s\n", addr, Binary(addr))
	} else {
		_, err = fmt.Fprintf(w.out, "0x%x\n", addr)
	}

	return err
}

// Binary returns the bits of v, most significant first, without leading
// zeros.
func Binary(v uint64) string {
	return strconv.FormatUint(v, 2)
}

// Hex formats an address the way the text report does.
func Hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// NewDocument converts a result to its structured form.
func NewDocument(result *inference.Result) Document {
	doc := Document{
		RunID:   result.RunID,
		Entries: len(result.Entries),
		Banks:   make([]BankDoc, 0, len(result.Banks)),
	}

	for _, b := range result.Banks {
		bd := BankDoc{ID: b.ID}
		for _, addr := range result.PhysAddrs(b) {
			bd.Addresses = append(bd.Addresses, Hex(addr))
		}

		doc.Banks = append(doc.Banks, bd)
	}

	addr := func(i int) string {
		return Hex(result.Entries[i].PhysAddr)
	}

	for _, c := range result.Conflicts {
		doc.Conflicts = append(doc.Conflicts, Conflict{
			Entry:       addr(c.Entry),
			PriorMaster: addr(c.PriorMaster),
			Master:      addr(c.Master),
		})
	}

	for _, i := range result.Unassigned {
		doc.Unassigned = append(doc.Unassigned, addr(i))
	}

	return doc
}

// WriteStats writes how many entries each bank holds.
func WriteStats(out io.Writer, result *inference.Result) error {
	_, err := fmt.Fprintf(out, "Banks in use: %d, Total Entries: %d\n",
		len(result.Banks), len(result.Entries))
	if err != nil {
		return err
	}

	for _, b := range result.Banks {
		_, err = fmt.Fprintf(out, "Bank:%d, Entries:%d\n", b.ID, b.Size())
		if err != nil {
			return err
		}
	}

	return nil
}
