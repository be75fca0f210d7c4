// Package model defines the records exchanged between the loader, validator,
// change detector, gatekeeper and uploader.
//
// Conventions:
//   - Symbol names are full, upper-case names and are unique per repository.
//   - Timestamps are UTC; daily rows carry midnight.
//   - Prices and volume are decimal.Decimal.
package model
