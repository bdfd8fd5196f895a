// Package repository implements the MySQL-backed collaborators of the
// booking core: catalog reads, the seat-slot journal, and the durable
// hold and booking records.  This file defines sentinel errors shared
// across repositories so higher layers can distinguish failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadRow is returned when a persisted row carries a value that fails
// boundary validation, such as an unknown status string.  It indicates
// data written by something other than this service.
var ErrBadRow = errors.New("invalid row")
