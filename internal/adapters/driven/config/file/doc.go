// Package file stores configuration and answer prompts on the local
// filesystem: a TOML settings file and a directory of prompt overrides.
package file
