// Package cache provides a file-based cache for derived JSON payloads such
// as the FLS section index.
//
// Keys are BLAKE3 digests. [FingerprintFiles] hashes the source files a
// payload was built from, so editing a chapter file invalidates the cached
// index without any explicit bookkeeping. Entries carry a creation time and
// a TTL in seconds; expired entries are dropped on read.
//
// The default directory is $XDG_CACHE_HOME/flsverify (or the OS equivalent).
package cache
