//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package webstatus serves a lightweight HTTP status page exposing the
// optimizer's network model, decision-cache occupancy, and the most
// recent performance report rows, rendered from markdown the way the
// profiler's webUI rendered its pattern summaries.
package webstatus

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gomarkdown/markdown"
)

// DefaultPort matches the profiler webUI's default.
const DefaultPort = 8080

// Snapshot is the data the status page renders. Providers build one on
// demand; webstatus holds no state of its own between requests.
type Snapshot struct {
	TopologyKind     string
	WorldSize        int
	BisectionBwMbps  float64
	CacheEntries     int
	CacheCapacity    int
	RecentReportRows []string // pre-formatted report lines, newest first
}

// Provider supplies the current Snapshot on every request. cmd/bench
// implements it from its optimizer and report writer, so webstatus never
// imports those packages and stays at the bottom of the dependency
// graph.
type Provider interface {
	Snapshot() Snapshot
}

// Config is the running status server's handle, mirroring the
// profiler webUI's Init/Start/Stop/Wait lifecycle.
type Config struct {
	wg       *sync.WaitGroup
	Port     int
	Provider Provider
	srv      *http.Server
}

// Init builds a status server configuration bound to provider. Start
// must be called to actually listen.
func Init(port int, provider Provider) *Config {
	cfg := &Config{
		wg:       &sync.WaitGroup{},
		Port:     port,
		Provider: provider,
	}
	cfg.wg.Add(1)
	return cfg
}

func renderMarkdown(s Snapshot) string {
	var b strings.Builder
	b.WriteString("# Collective Optimizer Status\n\n")
	b.WriteString(fmt.Sprintf("- **Topology**: %s\n", s.TopologyKind))
	b.WriteString(fmt.Sprintf("- **World size**: %d\n", s.WorldSize))
	b.WriteString(fmt.Sprintf("- **Bisection bandwidth**: %.1f Mbps\n", s.BisectionBwMbps))
	b.WriteString(fmt.Sprintf("- **Decision cache**: %d / %d entries\n\n", s.CacheEntries, s.CacheCapacity))

	b.WriteString("## Recent calls\n\n")
	if len(s.RecentReportRows) == 0 {
		b.WriteString("_no calls reported yet_\n")
		return b.String()
	}
	for _, row := range s.RecentReportRows {
		b.WriteString(fmt.Sprintf("- %s\n", row))
	}
	return b.String()
}

func (c *Config) indexHandler(w http.ResponseWriter, r *http.Request) {
	snap := c.Provider.Snapshot()
	html := markdown.ToHTML([]byte(renderMarkdown(snap)), nil, nil)
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write(html)
}

func (c *Config) stopHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/text")
	_, _ = w.Write([]byte("stopping\n"))
	if err := c.srv.Shutdown(context.Background()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Start instantiates the HTTP server and begins listening. It returns
// after the listener starts, without waiting for shutdown — call Wait
// for that.
func (c *Config) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.indexHandler)
	mux.HandleFunc("/stop", c.stopHandler)

	c.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Port),
		Handler: mux,
	}

	ln, err := net.Listen("tcp", c.srv.Addr)
	if err != nil {
		c.wg.Done()
		return err
	}

	go func() {
		defer c.wg.Done()
		_ = c.srv.Serve(ln)
	}()

	return nil
}

// Stop cleanly terminates the running status server.
func (c *Config) Stop() error {
	if c.srv == nil {
		return nil
	}
	if err := c.srv.Shutdown(context.Background()); err != nil {
		return err
	}
	c.wg.Wait()
	return nil
}

// Wait blocks until the status server terminates.
func (c *Config) Wait() {
	c.wg.Wait()
}

// RemoteStop sends a termination request to a status server running on
// host:port.
func RemoteStop(host string, port int) error {
	client := &http.Client{}
	req, err := http.NewRequest("GET", fmt.Sprintf("http://%s:%d/stop", host, port), nil)
	if err != nil {
		return err
	}
	req.Close = true
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
