//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Row{Op: "broadcast", Root: 0, Bytes: 1024, Participants: []int{0, 1, 2, 3}, AlgorithmChosen: "binomial_tree", ElapsedMicros: 12.5}))
	require.NoError(t, w.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w2.Append(Row{Op: "allreduce", Root: -1, Bytes: 2048, Participants: []int{0, 1, 2, 3}, AlgorithmChosen: "ring", ElapsedMicros: 44.0}))
	require.NoError(t, w2.Close())

	fd, err := os.Open(path)
	require.NoError(t, err)
	defer fd.Close()

	rows, err := csv.NewReader(fd).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 rows
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, []string{"timestamp", "op", "root", "bytes", "participants", "algorithm_chosen", "elapsed_us"}, rows[0])
	assert.Equal(t, "broadcast", rows[1][1])
	assert.Equal(t, "0-3", rows[1][4])
	assert.Equal(t, "allreduce", rows[2][1])
}

func TestOpenWritesManifestWithRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Row{Op: "reduce", Root: 0, Bytes: 8}))
	require.NoError(t, w.Append(Row{Op: "reduce", Root: 0, Bytes: 16}))

	fd, err := os.Open(path)
	require.NoError(t, err)
	defer fd.Close()
	rows, err := csv.NewReader(fd).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotContains(t, rows[0], "run_id")

	data, err := os.ReadFile(path + ".manifest.json")
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, w.RunID(), m.RunID)
	assert.Equal(t, path, m.ReportFile)
}

func TestRecentIsNewestFirstAndBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()
	w.capacity = 2

	require.NoError(t, w.Append(Row{Op: "a", Bytes: 1}))
	require.NoError(t, w.Append(Row{Op: "b", Bytes: 2}))
	require.NoError(t, w.Append(Row{Op: "c", Bytes: 3}))

	recent := w.Recent()
	require.Len(t, recent, 2)
	assert.Contains(t, recent[0], "c ")
	assert.Contains(t, recent[1], "b ")
}
