// Package batch loads batch definitions and reads and writes the
// consolidated batch report of a verification session.
package batch
