// Package domain contains the core data structures for the application,
// independent of the remote service or HTTP layers. Field tags follow the
// column names of the hosted tables.
package domain
