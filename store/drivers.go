package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// sqlite3Driver is go-sqlite3 with the package's SQL functions installed
// on every connection.
const sqlite3Driver = "sqlite3_chparse"

func init() {
	sql.Register(sqlite3Driver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("is_crawler", IsCrawler, true)
		},
	})
}

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs the SQL functions for the modernc driver.
// Registration is process wide and may only happen once.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("is_crawler", 1,
			func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				var ua string
				switch v := args[0].(type) {
				case nil:
				case string:
					ua = v
				case []byte:
					ua = string(v)
				default:
					return nil, fmt.Errorf("is_crawler: unexpected argument %T", v)
				}
				if IsCrawler(ua) {
					return int64(1), nil
				}
				return int64(0), nil
			})
	})
	return registerErr
}

// IsTransient reports whether err is worth retrying: the database was busy
// or locked, or the connection went away.
func IsTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var merr *sqlite.Error
	if errors.As(err, &merr) {
		switch merr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var cerr sqlite3.Error
	if errors.As(err, &cerr) {
		return cerr.Code == sqlite3.ErrBusy || cerr.Code == sqlite3.ErrLocked
	}
	return false
}
