package sqlite

import (
	"errors"

	sqlite "modernc.org/sqlite"
)

// Primary result codes from sqlite3.h.
const (
	codeBusy   = 5
	codeLocked = 6
)

func isBusy(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() & 0xff {
	case codeBusy, codeLocked:
		return true
	}
	return false
}
