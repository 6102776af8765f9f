package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// memBackend is a small database/sql driver that understands just enough of
// the migrations to enforce VARCHAR widths and answer schema queries.
type memBackend struct {
	mu           sync.Mutex
	widths       map[string]map[string]int
	inserts      map[string][][]driver.Value
	rowsAffected int64
	commits      int
	rollbacks    int
}

var (
	createTablePattern = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	varcharPattern     = regexp.MustCompile(`(?m)^\s+(\w+)\s+VARCHAR\((\d+)\)`)
	alterTextPattern   = regexp.MustCompile(`ALTER TABLE (\w+) ALTER COLUMN (\w+) TYPE TEXT`)
	insertPattern      = regexp.MustCompile(`(?s)INSERT INTO (\w+)\s*\(([^)]*)\)`)
)

func newMemDB(t *testing.T) (*DB, *memBackend) {
	t.Helper()
	backend := &memBackend{
		widths:       make(map[string]map[string]int),
		inserts:      make(map[string][][]driver.Value),
		rowsAffected: 1,
	}
	db := &DB{DB: sql.OpenDB(backend)}
	t.Cleanup(func() { db.Close() })
	return db, backend
}

func (b *memBackend) Connect(context.Context) (driver.Conn, error) { return &memConn{b: b}, nil }
func (b *memBackend) Driver() driver.Driver                        { return b }
func (b *memBackend) Open(string) (driver.Conn, error)             { return &memConn{b: b}, nil }

func (b *memBackend) exec(query string, args []driver.Value) (driver.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range createTablePattern.FindAllStringSubmatch(query, -1) {
		cols := make(map[string]int)
		for _, c := range varcharPattern.FindAllStringSubmatch(m[2], -1) {
			n, _ := strconv.Atoi(c[2])
			cols[c[1]] = n
		}
		b.widths[m[1]] = cols
	}
	for _, m := range alterTextPattern.FindAllStringSubmatch(query, -1) {
		delete(b.widths[m[1]], m[2])
	}

	if m := insertPattern.FindStringSubmatch(query); m != nil {
		table := m[1]
		for i, col := range strings.Split(m[2], ",") {
			if i >= len(args) {
				break
			}
			col = strings.TrimSpace(col)
			width, limited := b.widths[table][col]
			if s, ok := args[i].(string); ok && limited && len(s) > width {
				return nil, fmt.Errorf("pq: value too long for type character varying(%d)", width)
			}
		}
		b.inserts[table] = append(b.inserts[table], args)
	}

	return driver.RowsAffected(b.rowsAffected), nil
}

func (b *memBackend) query(query string, args []driver.Value) (driver.Rows, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case strings.Contains(query, "information_schema.tables"):
		_, exists := b.widths[args[0].(string)]
		return &memRows{cols: []string{"exists"}, values: [][]driver.Value{{exists}}}, nil
	case strings.Contains(query, "version()"):
		return &memRows{cols: []string{"version"}, values: [][]driver.Value{{"PostgreSQL 16.2"}}}, nil
	}
	return &memRows{}, nil
}

type memConn struct{ b *memBackend }

func (c *memConn) Prepare(query string) (driver.Stmt, error) {
	return &memStmt{b: c.b, query: query}, nil
}
func (c *memConn) Close() error              { return nil }
func (c *memConn) Begin() (driver.Tx, error) { return &memTx{b: c.b}, nil }

type memTx struct{ b *memBackend }

func (tx *memTx) Commit() error {
	tx.b.mu.Lock()
	defer tx.b.mu.Unlock()
	tx.b.commits++
	return nil
}

func (tx *memTx) Rollback() error {
	tx.b.mu.Lock()
	defer tx.b.mu.Unlock()
	tx.b.rollbacks++
	return nil
}

type memStmt struct {
	b     *memBackend
	query string
}

func (s *memStmt) Close() error  { return nil }
func (s *memStmt) NumInput() int { return -1 }
func (s *memStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.b.exec(s.query, args)
}
func (s *memStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.b.query(s.query, args)
}

type memRows struct {
	cols   []string
	values [][]driver.Value
}

func (r *memRows) Columns() []string { return r.cols }
func (r *memRows) Close() error      { return nil }
func (r *memRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	copy(dest, r.values[0])
	r.values = r.values[1:]
	return nil
}

func reportWithAddress(addr string) *models.RunReport {
	now := time.Now()
	return &models.RunReport{
		RunID:        "5b0c2a7e-8f7e-4c57-9a39-0f5e2f0f8c11",
		Paths:        []string{"capture.log"},
		RecordCount:  1,
		Percentile:   95,
		Threshold:    0.2,
		AnomalyCount: 1,
		BestModel:    "AutoEncoder",
		Models: []models.ModelResult{
			{Name: "AutoEncoder", Variant: "plain", ReconstructionError: 0.01, Accuracy: 0.99, TrainingTime: time.Second},
		},
		Records: []models.ScoredRecord{{
			Index: 0,
			Record: models.LogRecord{
				Timestamp:    "Mon Jan 01 00:00:01 2024",
				PacketLength: 60,
				SourceIP:     addr,
				DestIP:       "10.0.0.2",
				PayloadSum:   10,
				PayloadLen:   1,
			},
			Error:   0.5,
			Anomaly: true,
		}},
		StartedAt:   now,
		CompletedAt: now,
	}
}

func TestRunStore_SaveReport_LongMalformedAddress(t *testing.T) {
	db, backend := newMemDB(t)
	ctx := context.Background()
	require.NoError(t, NewMigrator(db).Run(ctx))

	addr := strings.Repeat("not-an-ip ", 200)
	require.NoError(t, NewRunStore(db).SaveReport(ctx, reportWithAddress(addr)))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.commits)
	assert.Equal(t, 0, backend.rollbacks)
	require.Len(t, backend.inserts["run_records"], 1)
	assert.Equal(t, addr, backend.inserts["run_records"][0][4])
	assert.Len(t, backend.inserts["model_results"], 1)
}

func TestRunStore_SaveReport_RollsBackOnInsertFailure(t *testing.T) {
	db, backend := newMemDB(t)
	ctx := context.Background()
	// Only the initial schema, where addresses are still VARCHAR(64).
	require.NoError(t, NewMigrator(db).RunFile(ctx, "001_initial_schema.sql"))

	err := NewRunStore(db).SaveReport(ctx, reportWithAddress(strings.Repeat("x", 65)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save records")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 0, backend.commits)
	assert.Equal(t, 1, backend.rollbacks)
}

func TestRunStore_MarkRunningAfterFinish(t *testing.T) {
	db, backend := newMemDB(t)
	ctx := context.Background()
	store := NewRunStore(db)

	assert.NoError(t, store.MarkRunning(ctx, "run-1"))

	backend.mu.Lock()
	backend.rowsAffected = 0
	backend.mu.Unlock()

	assert.NoError(t, store.MarkRunning(ctx, "run-1"))
	assert.ErrorIs(t, store.MarkFailed(ctx, "run-1", "boom", time.Now()), queries.ErrRunNotFound)
}

func TestDB_SchemaHelpers(t *testing.T) {
	db, _ := newMemDB(t)
	ctx := context.Background()

	missing, err := db.MissingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, RequiredTables, missing)

	files, err := NewMigrator(db).Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema.sql", "002_unbounded_addresses.sql"}, files)
	require.NoError(t, NewMigrator(db).Run(ctx))

	missing, err = db.MissingTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	version, err := db.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PostgreSQL 16.2", version)

	db.SetMaxOpenConns(7)
	assert.Equal(t, 7, db.PoolStats().MaxOpen)
	assert.NoError(t, db.HealthCheck(ctx))
}
