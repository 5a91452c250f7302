// Package filesystem provides a Connector over a local directory tree.
// Hidden files and directories are skipped and MIME types are detected
// from file extensions. Watch uses fsnotify and follows new directories.
package filesystem
