package dcat

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statement struct {
	subj, pred, obj string
	literal         bool
}

// decodeTurtle parses out and flattens its triples for comparison.
func decodeTurtle(t *testing.T, out []byte) []statement {
	t.Helper()

	triples, err := rdf.NewTripleDecoder(bytes.NewReader(out), rdf.Turtle).DecodeAll()
	require.NoError(t, err, string(out))

	var got []statement
	for _, tr := range triples {
		got = append(got, statement{
			subj:    tr.Subj.String(),
			pred:    tr.Pred.String(),
			obj:     tr.Obj.String(),
			literal: tr.Obj.Type() == rdf.TermLiteral,
		})
	}
	return got
}

func TestDescription_Turtle(t *testing.T) {
	d := &Description{
		Subject:     "https://example.com/c",
		Class:       Dataset,
		Identifiers: []Term{IRI("https://example.com/c"), Literal(`say "hi"`)},
	}

	out, err := d.Turtle()
	require.NoError(t, err)
	assert.ElementsMatch(t, []statement{
		{"https://example.com/c", rdfTypeNS, dcatNS + "Dataset", false},
		{"https://example.com/c", dctNS + "identifier", "https://example.com/c", false},
		{"https://example.com/c", dctNS + "identifier", `say "hi"`, true},
	}, decodeTurtle(t, out))
}

func TestDescription_TurtleEscapesIRIs(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"Space", "https://example.com/catalogue/my collection.json", "https://example.com/catalogue/my%20collection.json"},
		{"Brackets", "https://example.com/a<b>", "https://example.com/a%3Cb%3E"},
		{"NonASCII", "https://example.com/données/ü.json", "https://example.com/données/ü.json"},
		{"Plain", "https://example.com/a.json", "https://example.com/a.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Description{Subject: tt.href, Class: Catalog, Identifiers: []Term{IRI(tt.href)}}

			out, err := d.Turtle()
			require.NoError(t, err)
			assert.ElementsMatch(t, []statement{
				{tt.want, rdfTypeNS, dcatNS + "Catalog", false},
				{tt.want, dctNS + "identifier", tt.want, false},
			}, decodeTurtle(t, out))
		})
	}
}

func TestDescription_JSONLD(t *testing.T) {
	d := &Description{
		Subject:     "https://example.com/my root",
		Class:       Catalog,
		Identifiers: []Term{IRI("https://example.com/my root"), Literal("10.1000/x")},
	}

	out, err := d.JSONLD()
	require.NoError(t, err)

	var doc []map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc, 1)

	assert.Equal(t, "https://example.com/my%20root", doc[0]["@id"])
	assert.Equal(t, []any{dcatNS + "Catalog"}, doc[0]["@type"])
	assert.ElementsMatch(t, []any{
		map[string]any{"@id": "https://example.com/my%20root"},
		map[string]any{"@value": "10.1000/x"},
	}, doc[0][dctNS+"identifier"])
}
