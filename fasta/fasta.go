// Package fasta reads and writes FASTA sequence files, just enough to carry
// sequences alongside their metadata through subsampling. Residues are
// treated as opaque text.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"

	"github.com/watronfire/augur"
)

// Seq is one FASTA entry. ID is the first whitespace-delimited token of the
// header line; the rest of the header is kept as Description.
type Seq struct {
	ID          string
	Description string
	Residues    string
}

// Read parses all sequences from r.
func Read(r io.Reader) ([]Seq, error) {
	scanner := bufio.NewScanner(r)
	// Genome-length sequence lines exceed the default scanner buffer.
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<26)

	var seqs []Seq
	var current *Seq
	var residues strings.Builder

	flush := func() {
		if current != nil {
			current.Residues = residues.String()
			seqs = append(seqs, *current)
			residues.Reset()
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ">") {
			flush()
			header := strings.TrimSpace(strings.TrimPrefix(line, ">"))
			if header == "" {
				return nil, fmt.Errorf("fasta: header line with no identifier")
			}
			fields := strings.Fields(header)
			current = &Seq{
				ID:          fields[0],
				Description: strings.TrimSpace(strings.TrimPrefix(header, fields[0])),
			}
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("fasta: sequence data before the first header")
		}
		residues.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	flush()
	return seqs, nil
}

// ReadFile parses all sequences from the (possibly compressed) file at path.
func ReadFile(path string) ([]Seq, error) {
	r, err := augur.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	seqs, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("sequence file %s: %w", path, err)
	}
	return seqs, nil
}

// WriteSubset writes the sequences whose IDs are in keep, in input order. A
// nil keep set writes everything.
func WriteSubset(w io.Writer, seqs []Seq, keep map[string]bool) error {
	bw := bufio.NewWriter(w)

	for _, seq := range seqs {
		if keep != nil && !keep[seq.ID] {
			continue
		}

		header := ">" + seq.ID
		if seq.Description != "" {
			header += " " + seq.Description
		}

		if _, err := fmt.Fprintln(bw, header); err != nil {
			return pfx.Err(err)
		}
		if _, err := fmt.Fprintln(bw, seq.Residues); err != nil {
			return pfx.Err(err)
		}
	}

	if err := bw.Flush(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
