//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package report persists the performance report CSV spec.md §6
// describes: one row per optimized collective invocation, with exactly
// the columns spec.md §6 lists — {timestamp, op, root, bytes,
// participants, algorithm_chosen, elapsed_us} — appended in
// chronological order with plain decimal formatting. Every opened
// Writer also gets its own run ID (a UUID), but that ID is stamped on a
// sidecar manifest next to the CSV rather than mixed into the
// spec-mandated row schema, the way the profiler's getbins/convert
// tools keep their run-specific tagging out of the data file format
// the rest of the toolchain reads.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/clusterkit/topoopt/internal/pkg/notation"
)

var columns = []string{"timestamp", "op", "root", "bytes", "participants", "algorithm_chosen", "elapsed_us"}

// Row is one reported collective invocation.
type Row struct {
	TimestampUnixMicros int64
	Op                  string
	Root                int
	Bytes               int
	Participants        []int // ranks that took part; compressed via notation on write
	AlgorithmChosen     string
	ElapsedMicros       float64
}

func (r Row) strings() []string {
	return []string{
		strconv.FormatInt(r.TimestampUnixMicros, 10),
		r.Op,
		strconv.Itoa(r.Root),
		strconv.Itoa(r.Bytes),
		notation.ParticipantSet(r.Participants).Compress(),
		r.AlgorithmChosen,
		strconv.FormatFloat(r.ElapsedMicros, 'f', -1, 64),
	}
}

// manifest is the sidecar run-identification record written next to
// the CSV, named after the report file with a ".manifest.json" suffix.
type manifest struct {
	RunID      string `json:"run_id"`
	ReportFile string `json:"report_file"`
}

// Writer appends rows to a CSV file and stamps a fresh run ID into that
// file's manifest sidecar for the Writer's lifetime. Safe for
// concurrent use by multiple ranks writing to per-rank files or by one
// rank serializing its own report; it does not itself coordinate across
// processes.
type Writer struct {
	mu       sync.Mutex
	runID    string
	file     *os.File
	csv      *csv.Writer
	recent   []string
	capacity int
}

// DefaultRecentCapacity bounds how many formatted rows Recent keeps for
// a live status page; it is not a limit on what gets written to disk.
const DefaultRecentCapacity = 20

// Open appends to (or creates) the CSV file at path, writing the header
// row only if the file is new/empty, and stamps a fresh run ID into a
// "<path>.manifest.json" sidecar so repeated runs against the same CSV
// stay distinguishable without touching the CSV's own column schema.
func Open(path string) (*Writer, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("report: opening %s: %w", path, err)
	}

	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("report: statting %s: %w", path, err)
	}

	w := &Writer{
		runID:    uuid.NewString(),
		file:     fd,
		csv:      csv.NewWriter(fd),
		capacity: DefaultRecentCapacity,
	}

	if err := writeManifest(path, w.runID); err != nil {
		fd.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := w.csv.Write(columns); err != nil {
			fd.Close()
			return nil, fmt.Errorf("report: writing header: %w", err)
		}
		w.csv.Flush()
	}
	return w, nil
}

func writeManifest(reportPath, runID string) error {
	data, err := json.MarshalIndent(manifest{RunID: runID, ReportFile: reportPath}, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encoding manifest: %w", err)
	}
	if err := os.WriteFile(reportPath+".manifest.json", data, 0644); err != nil {
		return fmt.Errorf("report: writing manifest: %w", err)
	}
	return nil
}

// RunID is the UUID stamped in this Writer's manifest sidecar.
func (w *Writer) RunID() string { return w.runID }

// Append writes r as the next chronological row and flushes immediately
// so a crash mid-run doesn't lose already-reported calls.
func (w *Writer) Append(r Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fields := r.strings()
	if err := w.csv.Write(fields); err != nil {
		return fmt.Errorf("report: writing row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("report: flushing row: %w", err)
	}

	line := fmt.Sprintf("%s root=%d bytes=%d algo=%s elapsed_us=%.1f", r.Op, r.Root, r.Bytes, r.AlgorithmChosen, r.ElapsedMicros)
	w.recent = append([]string{line}, w.recent...)
	if len(w.recent) > w.capacity {
		w.recent = w.recent[:w.capacity]
	}
	return nil
}

// Recent returns the most recently appended rows, newest first,
// formatted for internal/pkg/webstatus's Snapshot.RecentReportRows.
func (w *Writer) Recent() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.recent))
	copy(out, w.recent)
	return out
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.file.Close()
}
