// Package logs reads the per-job log files written by the workflow manager.
//
// Tail returns the last lines of a file with bounded memory, ReadFrom picks
// up complete lines after an offset, and Follow polls for appended lines
// until its context ends. FormatLine renders one JSON record for terminals.
package logs
