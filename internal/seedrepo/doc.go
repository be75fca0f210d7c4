// Package seedrepo reads and writes the on-disk layout of a seed repository:
//
//	symbol_info/*.json   symbol metadata (columnar or list form)
//	data/<SYMBOL>.csv    one headerless OHLCV file per symbol
//
// Content problems are returned as violations; only I/O failures are errors.
package seedrepo
