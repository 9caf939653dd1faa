// Package dcat describes STAC catalogues and collections as DCAT.
//
// The Handler is a reconcile.Handler. For every added or updated STAC
// Catalog or Collection it writes a small linked-data description, in Turtle
// and JSON-LD, under datasets/<path>. It is intended only to be sufficient
// for finding quality information linked to a dataset:
//
//   - Catalog: <self> a dcat:Catalog; dct:identifier <self>.
//   - Collection: <self> a dcat:Dataset; dct:identifier <self>, plus the
//     rel=cite-as link and the DOI (sci:doi, or derived from a
//     https://doi.org/ cite-as link).
//
// Triples are built with knakk/rdf. Characters that IRIs may not contain,
// such as spaces, are percent-encoded.
//
// Only paths ending in .json are described. Anything else, anything that is
// not STAC JSON, and STAC Items are skipped with an empty action list. A STAC document without a self link fails validation.
// Deleting an entry deletes both descriptions.
package dcat
