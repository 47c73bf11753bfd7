/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/coloring"
	"github.com/notargets/gohalo/comm"
)

// ColorCmd represents the color command
var ColorCmd = &cobra.Command{
	Use:   "color",
	Short: "Color an unstructured mesh over a set of ranks",
	Long: `
Builds the cell graph of a mesh, partitions it, classifies every cell (and
optionally every vertex) as exclusive, shared or ghost and prints the
summary of each rank.

gohalo color -F mesh.su2 -n 4 -p metis --vertices`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, err := loadParameters(cmd)
		if err != nil {
			return err
		}
		stats, _ := cmd.Flags().GetBool("stats")
		ip.Print()
		_, err = RunColor(ip, stats, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(ColorCmd)
	addColoringFlags(ColorCmd)
}

// RunColor colors the mesh of ip on ip.Ranks ranks and writes the summaries
// to out. It returns the context of every rank.
func RunColor(ip *InputParameters.ColoringParameters, stats bool, out io.Writer) ([]*coloring.Context, error) {
	def, err := loadMesh(ip)
	if err != nil {
		return nil, err
	}
	cl, err := newColorer(ip, stats)
	if err != nil {
		return nil, err
	}
	var (
		w    = comm.NewWorld(ip.Ranks)
		ctxs = make([]*coloring.Context, ip.Ranks)
	)
	if err = w.Run(func(c *comm.Comm) (err error) {
		ctxs[c.Rank()], err = cl.Color(c, def)
		return
	}); err != nil {
		return nil, err
	}
	PrintColoring(out, ctxs[0])
	return ctxs, nil
}

var spaceNames = map[int]string{coloring.Cells: "cells", coloring.Vertices: "vertices"}

// PrintColoring writes the per-rank summaries gathered in ctx.
func PrintColoring(out io.Writer, ctx *coloring.Context) {
	for _, space := range ctx.IndexSpaces() {
		fmt.Fprintf(out, "%s\n", spaceNames[space])
		fmt.Fprintf(out, "%6s %10s %10s %10s  %-16s %-16s\n",
			"rank", "exclusive", "shared", "ghost", "shared users", "ghost owners")
		all := ctx.AllColoringInfo(space)
		for r := 0; r < ctx.Size; r++ {
			info := all[r]
			fmt.Fprintf(out, "%6d %10d %10d %10d  %-16v %-16v\n",
				r, info.Exclusive, info.Shared, info.Ghost, info.SharedUsers, info.GhostOwners)
		}
		fmt.Fprintf(out, "largest ghost request %d\n", ctx.MaxRequestSize(space))
	}
	if s := ctx.Stats; s != nil {
		fmt.Fprintf(out, "colors %d, sizes %v, imbalance %.3f, edge cut %d, components %v\n",
			len(s.Sizes), s.Sizes, s.Imbalance, s.EdgeCut, s.Components)
	}
}
