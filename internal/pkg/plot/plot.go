//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package plot renders the measurement harness's all-to-all bandwidth
// or latency matrix as a gnuplot heatmap PNG.
package plot

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const plotScriptPrelude = "set term png size 800,600\nset key outside\nset key right top\n"

// CreateMatrixPlot writes matrix as a gnuplot data file, generates a
// heatmap script titled title, and renders it to <outputDir>/<name>.png
// by invoking gnuplot. matrix[i][j] is the measured value between rank
// i and rank j; it need not be symmetric.
func CreateMatrixPlot(outputDir, name, title string, matrix [][]float64) error {
	dataFile := filepath.Join(outputDir, name+".dat")
	if err := writeMatrixData(dataFile, matrix); err != nil {
		return err
	}

	scriptFile, err := writeMatrixScript(outputDir, name, title, len(matrix))
	if err != nil {
		return err
	}

	gnuplotBin, err := exec.LookPath("gnuplot")
	if err != nil {
		return err
	}

	script, err := os.ReadFile(scriptFile)
	if err != nil {
		return err
	}

	cmd := exec.Command(gnuplotBin)
	cmd.Dir = outputDir
	cmd.Stdin = bytes.NewBuffer(script)
	return cmd.Run()
}

func writeMatrixData(path string, matrix [][]float64) error {
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer fd.Close()

	for _, row := range matrix {
		for j, v := range row {
			if j > 0 {
				if _, err := fd.WriteString(" "); err != nil {
					return err
				}
			}
			if _, err := fd.WriteString(fmt.Sprintf("%f", v)); err != nil {
				return err
			}
		}
		if _, err := fd.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeMatrixScript(outputDir, name, title string, n int) (string, error) {
	scriptFile := filepath.Join(outputDir, name+".gnuplot")
	fd, err := os.OpenFile(scriptFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	if _, err := fd.WriteString(plotScriptPrelude); err != nil {
		return "", err
	}
	if _, err := fd.WriteString(fmt.Sprintf("set output \"%s.png\"\n", name)); err != nil {
		return "", err
	}
	if _, err := fd.WriteString(fmt.Sprintf("set title \"%s\"\n", title)); err != nil {
		return "", err
	}
	if _, err := fd.WriteString("set view map\nset palette rgbformulae 22,13,-31\n"); err != nil {
		return "", err
	}
	if _, err := fd.WriteString(fmt.Sprintf("set xrange [-0.5:%d.5]\nset yrange [-0.5:%d.5]\n", n-1, n-1)); err != nil {
		return "", err
	}
	if _, err := fd.WriteString(fmt.Sprintf("plot \"%s.dat\" matrix with image notitle\n", name)); err != nil {
		return "", err
	}

	return scriptFile, nil
}
