// Package migrations holds the SQL schema changes. Importing it for side
// effects registers every migration with pkg/migration.
package migrations
