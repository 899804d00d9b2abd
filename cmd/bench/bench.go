//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Command bench drives the topology-aware collective optimizer against
// the in-process mock substrate: it builds a network-characteristics
// model for a chosen topology, measures pairwise bandwidth with the
// measurement harness, runs a broadcast, an allreduce and an allgather
// through the optimizer on every mock rank, and appends one performance
// report row per call. With -status it also serves a live status page
// and a Prometheus /metrics endpoint while it runs.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gvallee/go_util/pkg/util"

	"github.com/clusterkit/topoopt/internal/pkg/algorithms"
	"github.com/clusterkit/topoopt/internal/pkg/measure"
	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/internal/pkg/optimizer"
	"github.com/clusterkit/topoopt/internal/pkg/plot"
	"github.com/clusterkit/topoopt/internal/pkg/report"
	"github.com/clusterkit/topoopt/internal/pkg/webstatus"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

func parseTorusDims(s string) ([]int, error) {
	var dims []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid torus dimension %q: %w", part, err)
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func buildConfig(topology string, fatTreeK int, torusDims string, dfGroups, dfRouters, dfHosts, flatSize int) (model.Config, error) {
	switch topology {
	case "fat-tree":
		return model.Config{Kind: model.FatTree, FatTreeK: fatTreeK}, nil
	case "torus":
		dims, err := parseTorusDims(torusDims)
		if err != nil {
			return model.Config{}, err
		}
		return model.Config{Kind: model.Torus, TorusDims: dims}, nil
	case "dragonfly":
		return model.Config{Kind: model.Dragonfly, DragonflyGroups: dfGroups, DragonflyRoutersPerGroup: dfRouters, DragonflyHostsPerRouter: dfHosts}, nil
	case "flat":
		return model.Config{Kind: model.Flat, FlatSize: flatSize}, nil
	default:
		return model.Config{}, fmt.Errorf("unknown topology %q (want fat-tree, torus, dragonfly, or flat)", topology)
	}
}

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

type statusProvider struct {
	mu   sync.Mutex
	opt  *optimizer.Optimizer
	rep  *report.Writer
	kind string
	n    int
}

func (p *statusProvider) Snapshot() webstatus.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := webstatus.Snapshot{
		TopologyKind: p.kind,
		WorldSize:    p.n,
	}
	if p.opt != nil {
		snap.BisectionBwMbps = p.opt.Model().BisectionBandwidth()
		snap.CacheEntries = p.opt.CacheLen()
		snap.CacheCapacity = p.opt.CacheCapacity()
	}
	if p.rep != nil {
		snap.RecentReportRows = p.rep.Recent()
	}
	return snap
}

func reportAlgorithm(rep *report.Writer, op string, root, bytes, n int, res optimizer.Result) {
	participants := make([]int, n)
	for i := range participants {
		participants[i] = i
	}
	_ = rep.Append(report.Row{
		TimestampUnixMicros: time.Now().UnixMicro(),
		Op:                  op,
		Root:                root,
		Bytes:               bytes,
		Participants:        participants,
		AlgorithmChosen:     res.Plan.Algorithm.String(),
		ElapsedMicros:       res.ElapsedMicros,
	})
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose mode")
	help := flag.Bool("h", false, "Help message")
	topology := flag.String("topology", "flat", "Topology kind: fat-tree, torus, dragonfly, or flat")
	fatTreeK := flag.Int("k", 4, "Fat-tree k (must be even)")
	torusDims := flag.String("dims", "4,4", "Comma-separated torus dimension extents")
	dfGroups := flag.Int("df-groups", 4, "Dragonfly group count")
	dfRouters := flag.Int("df-routers", 4, "Dragonfly routers per group")
	dfHosts := flag.Int("df-hosts", 4, "Dragonfly hosts per router")
	flatSize := flag.Int("n", 8, "World size for a flat topology")
	bytesFlag := flag.Int("bytes", 64*1024, "Payload size in bytes for the bandwidth sweep, broadcast and allreduce (allgather sends one float64 per rank)")
	reportPath := flag.String("report", "topoopt-report.csv", "Path to the performance report CSV")
	plotDir := flag.String("plot-dir", "", "If set, render the measured bandwidth matrix as a gnuplot heatmap here")
	status := flag.Bool("status", false, "Serve a live status page and Prometheus metrics while running")
	statusPort := flag.Int("status-port", webstatus.DefaultPort, "Port for -status's HTTP server")
	metricsPort := flag.Int("metrics-port", 9090, "Port for -status's /metrics endpoint")

	flag.Parse()

	cmdName := filepath.Base(os.Args[0])
	if *help {
		fmt.Printf("%s runs the topology-aware collective optimizer against an in-process mock substrate.\n", cmdName)
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

	cfg, err := buildConfig(*topology, *fatTreeK, *torusDims, *dfGroups, *dfRouters, *dfHosts, *flatSize)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}

	m, err := model.New(cfg)
	if err != nil {
		fmt.Printf("ERROR: invalid topology configuration: %s\n", err)
		os.Exit(1)
	}
	n := m.WorldSize
	log.Printf("built %s model with %d ranks, bisection bandwidth %.0f Mbps", m.Kind, n, m.BisectionBandwidth())

	rep, err := report.Open(*reportPath)
	if err != nil {
		fmt.Printf("ERROR: opening report file: %s\n", err)
		os.Exit(1)
	}
	defer rep.Close()

	comms := substrate.NewComms(n)
	opts := make([]*optimizer.Optimizer, n)
	for r := range opts {
		opts[r] = optimizer.New(m)
	}

	if *status {
		prov := &statusProvider{opt: opts[0], rep: rep, kind: m.Kind.String(), n: n}
		sc := webstatus.Init(*statusPort, prov)
		if err := sc.Start(); err != nil {
			fmt.Printf("ERROR: starting status page: %s\n", err)
			os.Exit(1)
		}
		defer sc.Stop()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("serving /metrics on :%d", *metricsPort)
			_ = http.ListenAndServe(fmt.Sprintf(":%d", *metricsPort), mux)
		}()
		fmt.Printf("status page: http://localhost:%d/  metrics: http://localhost:%d/metrics\n", *statusPort, *metricsPort)
	}

	fmt.Println("* Step 1/3: measuring pairwise bandwidth...")
	matrix, err := runMeasurement(comms, n, *bytesFlag)
	if err != nil {
		fmt.Printf("ERROR: measurement pass failed: %s\n", err)
		os.Exit(1)
	}
	if *plotDir != "" {
		if err := plot.CreateMatrixPlot(*plotDir, "bandwidth", "Measured all-to-all bandwidth (Mbps)", matrix); err != nil {
			log.Printf("plot generation skipped: %s", err)
		}
	}

	fmt.Println("* Step 2/3: running optimized collectives...")
	if err := runCollectives(comms, opts, n, *bytesFlag, rep); err != nil {
		fmt.Printf("ERROR: collective run failed: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("* Step 3/3: done, report written to %s (run %s)\n", *reportPath, rep.RunID())
}

func runMeasurement(comms []substrate.Comm, n, bytes int) ([][]float64, error) {
	var matrix [][]float64
	errs := runOnAllRanks(n, func(r int) error {
		mat, err := measure.MeasureAllToAllBandwidth(comms[r], bytes)
		if r == 0 {
			matrix = mat
		}
		return err
	})
	for r, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return matrix, nil
}

func runCollectives(comms []substrate.Comm, opts []*optimizer.Optimizer, n, bytes int, rep *report.Writer) error {
	bcastBufs := make([][]byte, n)
	for r := range bcastBufs {
		bcastBufs[r] = make([]byte, bytes)
	}
	payload := make([]byte, bytes)
	for i := range payload {
		payload[i] = byte(i)
	}
	copy(bcastBufs[0], payload)

	var bcastResult optimizer.Result
	if errs := runOnAllRanks(n, func(r int) error {
		res, err := opts[r].Broadcast(comms[r], bcastBufs[r], 0)
		if r == 0 {
			bcastResult = res
		}
		return err
	}); anyError(errs) != nil {
		return anyError(errs)
	}
	reportAlgorithm(rep, "broadcast", 0, bytes, n, bcastResult)

	count := bytes / 8
	if count == 0 {
		count = 1
	}
	sendbufs := make([][]float64, n)
	recvbufs := make([][]float64, n)
	for r := 0; r < n; r++ {
		sendbufs[r] = make([]float64, count)
		for i := range sendbufs[r] {
			sendbufs[r][i] = float64(r + i)
		}
		recvbufs[r] = make([]float64, count)
	}
	var allreduceResult optimizer.Result
	if errs := runOnAllRanks(n, func(r int) error {
		res, err := opts[r].Allreduce(comms[r], sendbufs[r], recvbufs[r], substrate.OpSum)
		if r == 0 {
			allreduceResult = res
		}
		return err
	}); anyError(errs) != nil {
		return anyError(errs)
	}
	reportAlgorithm(rep, "allreduce", -1, count*8, n, allreduceResult)

	const chunkLen = 8 // one float64
	allgatherSend := make([][]byte, n)
	allgatherRecv := make([][]byte, n)
	for r := 0; r < n; r++ {
		allgatherSend[r] = algorithms.EncodeFloats([]float64{float64(r)})
		allgatherRecv[r] = make([]byte, chunkLen*n)
	}
	var allgatherResult optimizer.Result
	if errs := runOnAllRanks(n, func(r int) error {
		res, err := opts[r].Allgather(comms[r], allgatherSend[r], allgatherRecv[r])
		if r == 0 {
			allgatherResult = res
		}
		return err
	}); anyError(errs) != nil {
		return anyError(errs)
	}
	reportAlgorithm(rep, "allgather", -1, chunkLen, n, allgatherResult)

	return nil
}

func anyError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
