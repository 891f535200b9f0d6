// Package decision holds the worker-side tools around decision files:
// recording a decision for one guideline, checking batch membership,
// clearing decisions from a session report and backfilling search
// evidence into older files.
//
// Every file written here passes the same structural checks merge runs,
// so a recorded decision never aborts a later merge.
package decision
