// Package types defines the data shapes shared across the convsync ETL:
// raw API records, flat per-entity row-sets, and the error types a run can
// surface. A Record is one API-returned entity instance as a field mapping;
// a RowSet is a flat, homogeneous collection of rows destined for one
// warehouse table; a Dataset maps entity names to their row-sets.
package types
