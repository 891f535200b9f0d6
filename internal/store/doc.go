// Package store loads the read-only reference data (baseline mapping,
// ADD-6 table, standard catalogue, FLS chapters) and persists the derived
// per-guideline artifacts under a project layout.
//
// Every write goes through [WriteJSON], which writes a temporary file in the
// target directory and renames it into place so concurrent readers never
// observe a partial file.
package store
