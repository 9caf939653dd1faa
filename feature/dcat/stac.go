package dcat

import (
	"encoding/json"
	"net/url"
	"strings"

	"catalogue-ingester/core/failure"
)

// DOIURLPrefix is the resolver prefix of DOIs given in URL form.
const DOIURLPrefix = "https://doi.org/"

type stacLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type stacEntry struct {
	STACVersion string          `json:"stac_version"`
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	Links       []stacLink      `json:"links"`
	SciDOI      json.RawMessage `json:"sci:doi"`
}

func (e *stacEntry) link(rel string) string {
	for _, l := range e.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

// Describe builds the DCAT description of a STAC document. It returns nil
// when body is not a STAC Catalog or Collection.
func Describe(body []byte) (*Description, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, nil
	}
	if _, ok := probe["stac_version"]; !ok {
		return nil, nil
	}

	var entry stacEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, failure.Validation("malformed STAC document: %v", err)
	}

	var class Class
	switch entry.Type {
	case "Catalog":
		class = Catalog
	case "Collection":
		class = Dataset
	default:
		return nil, nil
	}

	self := entry.link("self")
	if self == "" {
		return nil, failure.Validation("STAC %s %q has no self link", entry.Type, entry.ID)
	}

	d := &Description{
		Subject:     self,
		Class:       class,
		Identifiers: []Term{IRI(self)},
	}
	if class == Catalog {
		return d, nil
	}

	// DOIs may be given as a rel=cite-as link in URL form or as a bare
	// sci:doi property. cite-as is not necessarily a DOI.
	var doi string
	if len(entry.SciDOI) > 0 {
		if err := json.Unmarshal(entry.SciDOI, &doi); err != nil {
			return nil, failure.Validation("sci:doi of %q is not a string", entry.ID)
		}
	}

	if citeAs := entry.link("cite-as"); citeAs != "" {
		href, err := absolute(self, citeAs)
		if err != nil {
			return nil, failure.Validation("invalid cite-as link %q: %v", citeAs, err)
		}
		d.Identifiers = append(d.Identifiers, IRI(href))

		if doi == "" && strings.HasPrefix(href, DOIURLPrefix) {
			doi = strings.TrimPrefix(href, DOIURLPrefix)
		}
	}

	if doi != "" {
		d.Identifiers = append(d.Identifiers, Literal(doi))
	}
	return d, nil
}

// absolute resolves href against base.
func absolute(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return href, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
