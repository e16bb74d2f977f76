package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/conneroisu/feasp/internal/errors"
	"github.com/conneroisu/feasp/internal/testutils"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Common(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	require.NoError(t, s.CreateTable(ctx, "Student", []string{"Name", "Age"}))
	require.NoError(t, s.Insert(ctx, "Student", "Lns_XueFeng", 22))
	require.NoError(t, s.InsertMany(ctx, "Student", [][]any{
		{"XueFeng", 22},
		{"XueXue", 25},
		{"Temp", 99},
		{"XueLian", 28},
	}))

	n, err := s.Delete(ctx, "Student", map[string]any{"Name": "Temp", "Age": 99})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Update(ctx, "Student", map[string]any{"Name": "Lns-XueFeng"}, Column{"Name", "Lns_XueFeng"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err := s.FetchAll(ctx, "Student")
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"Lns-XueFeng", int64(22)},
		{"XueFeng", int64(22)},
		{"XueXue", int64(25)},
		{"XueLian", int64(28)},
	}, rows)
}

func TestStore_DeleteNeedsEveryCondition(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.CreateTable(ctx, "Student", []string{"Name", "Age"}))
	require.NoError(t, s.Insert(ctx, "Student", "XueFeng", 22))

	n, err := s.Delete(ctx, "Student", map[string]any{"Name": "XueFeng", "Age": 23})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Delete(ctx, "Student", nil)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeBadRequest))
}

func TestStore_InsertManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.CreateTable(ctx, "Student", []string{"Name", "Age"}))

	err := s.InsertMany(ctx, "Student", [][]any{{"a", 1}, {"b"}})
	require.Error(t, err)

	rows, err := s.FetchAll(ctx, "Student")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ValuesAreNotSQL(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.CreateTable(ctx, "users", []string{"name", "password"}))
	require.NoError(t, s.Insert(ctx, "users", "XueFeng", "123456789"))

	for _, injected := range testutils.SecurityTestCases.SQLInjection {
		row, err := s.QueryRow(ctx, "users", map[string]any{"name": "XueFeng", "password": injected})
		require.NoError(t, err, injected)
		assert.Nil(t, row, injected)

		require.NoError(t, s.Insert(ctx, "users", injected, injected))
	}

	rows, err := s.FetchAll(ctx, "users")
	require.NoError(t, err)
	require.Len(t, rows, 1+len(testutils.SecurityTestCases.SQLInjection))
	for i, injected := range testutils.SecurityTestCases.SQLInjection {
		assert.Equal(t, []any{injected, injected}, rows[i+1], "values are stored verbatim")
	}

	row, err := s.QueryRow(ctx, "users", map[string]any{"name": "XueFeng", "password": "123456789"})
	require.NoError(t, err)
	assert.Equal(t, []any{"XueFeng", "123456789"}, row)
}

func TestStore_RejectsBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	for _, name := range testutils.SecurityTestCases.BadIdentifiers {
		err := s.CreateTable(ctx, name, []string{"a"})
		assert.Error(t, err, name)
		assert.Equal(t, 400, ferrors.StatusOf(err), name)
	}
	require.NoError(t, s.CreateTable(ctx, "_ok_1", []string{"A_b"}))
	assert.Error(t, s.CreateTable(ctx, "t", []string{"a;b"}))
	assert.Error(t, s.CreateTable(ctx, "t", nil))

	_, err := s.Update(ctx, "_ok_1", map[string]any{"A_b": 1}, Column{"x y", 1})
	assert.Error(t, err)
	_, err = s.FetchAll(ctx, "no such")
	assert.Error(t, err)
}

func TestStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feasp.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTable(ctx, "kv", []string{"k", "v"}))
	require.NoError(t, s.Insert(ctx, "kv", "a", "b"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.FetchAll(ctx, "kv")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a", "b"}}, rows)
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeConfig))
}
