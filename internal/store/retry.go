package store

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Writers all live in this process and the DSN sets busy_timeout, so SQLite
// already waits out ordinary lock holders. What still surfaces is mostly
// SQLITE_BUSY_SNAPSHOT, which WAL mode returns without calling the busy
// handler when a write follows a stale read. A few short waits clear it.
var writeRetry = backoff{attempts: 4, base: 10 * time.Millisecond, cap: 80 * time.Millisecond}

type backoff struct {
	attempts  int // total calls, including the first
	base, cap time.Duration
}

// do calls fn until it succeeds, fails permanently, or attempts run out.
func (b backoff) do(fn func() error) error {
	err := fn()
	for i := 1; i < b.attempts && transient(err); i++ {
		time.Sleep(b.delay(i - 1))
		err = fn()
	}
	return err
}

// delay picks uniformly from the upper half of min(base·2^n, cap).
func (b backoff) delay(n int) time.Duration {
	d := min(b.base<<n, b.cap)
	return d/2 + rand.N(d/2+1)
}

// transient reports whether err is a lock conflict or a short read.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return code == sqlite3.SQLITE_IOERR_SHORT_READ
	}
	// database/sql sometimes hands back the driver text without the type.
	return strings.Contains(err.Error(), "database is locked")
}
