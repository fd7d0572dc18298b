// Package store declares the repository for import run progress.
package store
