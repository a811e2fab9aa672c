// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversations, run contexts and tool
// contexts. Not intended for production usage.
package testutil
