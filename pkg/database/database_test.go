package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"moverscan/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

// stubDriver hands out connections whose transactions fail on commit when
// commitErr is set. Just enough of database/sql/driver to exercise
// DB.Transaction without a server.
type stubDriver struct {
	commitErr error
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return &stubConn{commitErr: d.commitErr}, nil }

type stubConn struct {
	commitErr error
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("unsupported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{commitErr: c.commitErr}, nil }

type stubTx struct {
	commitErr error
}

func (t stubTx) Commit() error   { return t.commitErr }
func (t stubTx) Rollback() error { return nil }

func init() {
	sql.Register("stub-commit-fails", &stubDriver{commitErr: errors.New("disk full")})
	sql.Register("stub-commit-ok", &stubDriver{})
}

func TestTransaction_CommitFailureSurfaces(t *testing.T) {
	sqlDB, err := sql.Open("stub-commit-fails", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	db := &DB{DB: sqlDB}

	err = db.Transaction(context.Background(), func(tx *sql.Tx) error { return nil })
	if err == nil {
		t.Fatal("commit failure must propagate to the caller")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error should wrap the commit failure, got %v", err)
	}
}

func TestTransaction_FnErrorRollsBack(t *testing.T) {
	sqlDB, err := sql.Open("stub-commit-ok", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	db := &DB{DB: sqlDB}

	want := errors.New("write rejected")
	err = db.Transaction(context.Background(), func(tx *sql.Tx) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("fn error should come back unchanged, got %v", err)
	}
}

func TestTransaction_Success(t *testing.T) {
	sqlDB, err := sql.Open("stub-commit-ok", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	db := &DB{DB: sqlDB}

	if err := db.Transaction(context.Background(), func(tx *sql.Tx) error { return nil }); err != nil {
		t.Errorf("clean transaction should commit without error, got %v", err)
	}
}
