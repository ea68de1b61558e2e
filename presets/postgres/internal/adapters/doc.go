// Package adapters puts pgx, database/sql and sqlx behind one DBAdapter interface.
package adapters
