package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inelson/kubesql/internal/models"
)

func sampleTables() *models.Tables {
	return &models.Tables{
		Pods: []models.ResourceRecord{
			{
				UID:      "pod-uid-1",
				Node:     "node-1",
				Metadata: models.Document{"name": "web-0", "namespace": "default", "uid": "pod-uid-1"},
				Spec:     models.Document{"nodeName": "node-1"},
				Status:   models.Document{"phase": "Running"},
			},
		},
		Nodes: []models.ResourceRecord{
			{UID: "node-uid-1", Name: "node-1", Metadata: models.Document{"name": "node-1"}},
		},
		Containers: []models.ContainerRecord{
			{Image: "nginx:1.27", UID: "pod-uid-1", Restarts: 3},
			{Image: "envoy:1.30", UID: "pod-uid-1", Restarts: 0},
		},
	}
}

func TestLoad_CreatesTables(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"pods", "nodes", "services", "containers"} {
		res, err := db.Query(ctx, "SELECT count(*) FROM "+table)
		require.NoError(t, err, table)
		require.Len(t, res.Rows, 1)
	}
}

func TestQuery_ColumnsFollowSelectList(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	res, err := db.Query(ctx, "SELECT restarts, image FROM containers ORDER BY image")
	require.NoError(t, err)
	assert.Equal(t, []string{"restarts", "image"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{int64(0), "envoy:1.30"}, res.Rows[0])
	assert.Equal(t, []any{int64(3), "nginx:1.27"}, res.Rows[1])
}

func TestQuery_JSONExtract(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	res, err := db.Query(ctx, "SELECT json_extract(metadata, '$.namespace') AS ns FROM pods")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "default", res.Rows[0][0])
}

func TestQuery_Join(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	res, err := db.Query(ctx, `SELECT nodes.name, SUM(containers.restarts)
		FROM containers JOIN pods ON pods.uid = containers.uid
		JOIN nodes ON nodes.name = pods.node GROUP BY nodes.name`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "node-1", res.Rows[0][0])
	assert.EqualValues(t, 3, res.Rows[0][1])
}

func TestQuery_EmptyTable(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, &models.Tables{})
	require.NoError(t, err)
	defer db.Close()

	res, err := db.Query(ctx, "SELECT uid FROM nodes")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"uid"}, res.Columns)
}

func TestQuery_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Query(ctx, "DELETE FROM containers")
	require.Error(t, err)

	res, err := db.Query(ctx, "SELECT count(*) FROM containers")
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])
}

func TestQuery_CannotLiftReadOnly(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	attempts := []string{
		"PRAGMA query_only = OFF",
		"pragma query_only=0",
		"/* hint */ PRAGMA query_only = OFF",
		"SELECT 1; PRAGMA query_only = OFF",
		"SELECT 1; DELETE FROM containers",
		"ATTACH DATABASE ':memory:' AS other",
		"DETACH DATABASE main",
		"DROP TABLE pods",
		"INSERT INTO containers (image, uid) VALUES ('x', 'y')",
		"UPDATE containers SET restarts = 99",
		"CREATE TABLE extra (id INTEGER)",
		"VACUUM",
	}
	for _, q := range attempts {
		_, err := db.Query(ctx, q)
		assert.ErrorIs(t, err, ErrStatementNotAllowed, q)
	}

	_, err = db.Query(ctx, "DELETE FROM containers")
	require.Error(t, err)
	_, err = db.Query(ctx, "WITH doomed AS (SELECT 1) DELETE FROM containers")
	require.Error(t, err)

	res, err := db.Query(ctx, "SELECT count(*) FROM containers")
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])

	res, err = db.Query(ctx, "SELECT count(*) FROM pods")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rows[0][0])
}

func TestCheckReadOnly(t *testing.T) {
	allowed := []string{
		"SELECT * FROM pods",
		"  select uid from pods;",
		"(SELECT 1)",
		"WITH p AS (SELECT uid FROM pods) SELECT * FROM p",
		"VALUES (1), (2)",
		"SELECT 'a; PRAGMA query_only = OFF' AS text",
		"SELECT \"weird;name\" FROM pods",
		"SELECT 1 -- trailing; comment",
		"SELECT 'it''s'",
	}
	for _, q := range allowed {
		assert.NoError(t, checkReadOnly(q), q)
	}

	rejected := []string{
		"",
		";",
		"EXPLAIN PRAGMA query_only = OFF",
		"SELECT 1; SELECT 2",
		"SELECT 'x'; PRAGMA query_only = OFF",
		"REINDEX",
	}
	for _, q := range rejected {
		assert.ErrorIs(t, checkReadOnly(q), ErrStatementNotAllowed, q)
	}
}

func TestQuery_UnknownTable(t *testing.T) {
	ctx := context.Background()
	db, err := Load(ctx, sampleTables())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Query(ctx, "SELECT * FROM deployments")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployments")
}

func TestLoad_DuplicateUIDFails(t *testing.T) {
	tables := &models.Tables{
		Nodes: []models.ResourceRecord{
			{UID: "same", Name: "a"},
			{UID: "same", Name: "b"},
		},
	}
	_, err := Load(context.Background(), tables)
	require.Error(t, err)
}

func TestEncodeDocument_Nil(t *testing.T) {
	text, err := encodeDocument(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
}
