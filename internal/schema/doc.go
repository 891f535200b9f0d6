// Package schema defines the record shapes exchanged by every flsverify
// component: guidelines, baseline mapping entries, verification decisions,
// ADD-6 reference rows and batch expected patterns.
//
// Mapping and decision JSON exists in three historical shapes. [DecodeDecision]
// and [DecodeMapping] detect the version explicitly and normalize every
// record to the dual-context shape (all_rust / safe_rust), so downstream
// packages never branch on schema versions.
//
// Structural validation (validate.go) combines go-playground/validator struct
// tags with custom FLS id and enum checks and reports every problem with its
// JSON field path. The decision-file JSON Schema (jsonschema.go) is the gate
// applied to raw files before they are trusted.
package schema
