// Package setup owns process environment handling and directory
// initialization. It is essentially a collection of scripts and constants,
// and is therefore the only package allowed to read ambient environment
// state or call a global logger.
package setup
