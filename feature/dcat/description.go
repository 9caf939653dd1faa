package dcat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"
)

const (
	dcatNS    = "http://www.w3.org/ns/dcat#"
	dctNS     = "http://purl.org/dc/terms/"
	rdfTypeNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// Class is the rdf:type of a description.
type Class string

const (
	// Catalog is dcat:Catalog.
	Catalog Class = "Catalog"
	// Dataset is dcat:Dataset.
	Dataset Class = "Dataset"
)

// Term is an IRI or a plain literal.
type Term struct {
	IRI     string
	Literal string
}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{IRI: v} }

// Literal returns a plain literal term.
func Literal(v string) Term { return Term{Literal: v} }

// Description is the DCAT view of one STAC entry.
type Description struct {
	// Subject is the self href of the entry.
	Subject string
	// Class is the DCAT class of the entry.
	Class Class
	// Identifiers are the dct:identifier values, in order.
	Identifiers []Term
}

// Triples returns the statements of d.
func (d *Description) Triples() ([]rdf.Triple, error) {
	subject, err := newIRI(d.Subject)
	if err != nil {
		return nil, err
	}
	class, err := newIRI(dcatNS + string(d.Class))
	if err != nil {
		return nil, err
	}
	typ, _ := rdf.NewIRI(rdfTypeNS)
	identifier, _ := rdf.NewIRI(dctNS + "identifier")

	triples := []rdf.Triple{{Subj: subject, Pred: typ, Obj: class}}
	for _, id := range d.Identifiers {
		var obj rdf.Object
		if id.IRI != "" {
			if obj, err = newIRI(id.IRI); err != nil {
				return nil, err
			}
		} else {
			if obj, err = rdf.NewLiteral(id.Literal); err != nil {
				return nil, err
			}
		}
		triples = append(triples, rdf.Triple{Subj: subject, Pred: identifier, Obj: obj})
	}
	return triples, nil
}

// Turtle serializes d as Turtle.
func (d *Description) Turtle() ([]byte, error) {
	return d.encode(rdf.Turtle)
}

// JSONLD serializes d as expanded JSON-LD.
func (d *Description) JSONLD() ([]byte, error) {
	nt, err := d.encode(rdf.NTriples)
	if err != nil {
		return nil, err
	}

	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	doc, err := ld.NewJsonLdProcessor().FromRDF(string(nt), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON-LD: %w", err)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (d *Description) encode(format rdf.Format) ([]byte, error) {
	triples, err := d.Triples()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, format)
	if err := enc.EncodeAll(triples); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newIRI(v string) (rdf.IRI, error) {
	iri, err := rdf.NewIRI(escapeIRI(v))
	if err != nil {
		return rdf.IRI{}, fmt.Errorf("invalid IRI %q: %w", v, err)
	}
	return iri, nil
}

// escapeIRI percent-encodes the characters an IRI reference may not contain.
// Other non-ASCII characters are valid in IRIs and kept.
func escapeIRI(v string) string {
	if strings.IndexFunc(v, forbiddenInIRI) < 0 {
		return v
	}

	var b strings.Builder
	for _, r := range v {
		if !forbiddenInIRI(r) {
			b.WriteRune(r)
			continue
		}
		for _, c := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func forbiddenInIRI(r rune) bool {
	if r <= 0x20 || r == 0x7f {
		return true
	}
	return strings.ContainsRune("<>\"{}|^`\\", r)
}
