// Package standard enumerates the supported coding standards and the file
// layout each one uses under a project root.
package standard
