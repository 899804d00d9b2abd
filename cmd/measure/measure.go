//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Command measure runs the measurement harness alone, against the
// in-process mock substrate, and prints a human-readable summary of
// the ping-pong latency between rank 0 and the highest rank, and of the
// point-to-point bandwidth it found between every rank pair. It exists separately from cmd/bench so a caller can
// characterize a (mock) interconnect without also running collectives
// against it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/gvallee/go_util/pkg/util"

	"github.com/clusterkit/topoopt/internal/pkg/measure"
	"github.com/clusterkit/topoopt/internal/pkg/progress"
	"github.com/clusterkit/topoopt/internal/pkg/unitfmt"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

func runOnAllRanks(n int, fn func(rank int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			errs[r] = fn(r)
		}(r)
	}
	wg.Wait()
	return errs
}

func formatBandwidth(mbps float64) string {
	bytesPerSec := mbps * 1e6 / 8.0
	unit, scaled, err := unitfmt.Scale("B/s", []float64{bytesPerSec})
	if err != nil || len(scaled) == 0 {
		return fmt.Sprintf("%.2f B/s", bytesPerSec)
	}
	return fmt.Sprintf("%.2f %s", scaled[0], unit)
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose mode")
	help := flag.Bool("h", false, "Help message")
	n := flag.Int("n", 4, "Number of mock ranks")
	bytes := flag.Int("bytes", 1<<16, "Bandwidth measurement payload size in bytes")

	flag.Parse()

	cmdName := filepath.Base(os.Args[0])
	if *help {
		fmt.Printf("%s measures pairwise latency and bandwidth over the in-process mock substrate.\n", cmdName)
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	logFile := util.OpenLogFile("topoopt", cmdName)
	defer logFile.Close()
	if *verbose {
		log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	} else {
		log.SetOutput(logFile)
	}

	comms := substrate.NewComms(*n)

	fmt.Printf("* measuring ping-pong latency between rank 0 and rank %d...\n", *n-1)
	var latencyUs float64
	errs := runOnAllRanks(*n, func(r int) error {
		us, err := measure.MeasurePointToPointLatency(comms[r], 0, *n-1, measure.DefaultLatencyWarmup, measure.DefaultLatencyIterations)
		if r == 0 {
			latencyUs = us
		}
		return err
	})
	if err := firstError(errs); err != nil {
		fmt.Printf("ERROR: latency measurement failed: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("  one-way latency: %.2f us\n", latencyUs)

	fmt.Println("* measuring all-to-all bandwidth...")
	// Each rank's matrix only holds the pairs it took part in, so pair
	// (i,j) is read from rank i's matrix.
	matrices := make([][][]float64, *n)
	bar := progress.NewBar(1, "bandwidth sweep", true)
	errs = runOnAllRanks(*n, func(r int) error {
		mat, err := measure.MeasureAllToAllBandwidth(comms[r], *bytes)
		matrices[r] = mat
		return err
	})
	progress.EndBar(bar)
	if err := firstError(errs); err != nil {
		fmt.Printf("ERROR: bandwidth measurement failed: %s\n", err)
		os.Exit(1)
	}

	for i := 0; i < *n; i++ {
		for j := i + 1; j < *n; j++ {
			fmt.Printf("  rank %d <-> rank %d: %s\n", i, j, formatBandwidth(matrices[i][i][j]))
		}
	}
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
