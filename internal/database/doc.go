// Package database provides the PostgreSQL connection pool for the
// optional trade archive.
package database
