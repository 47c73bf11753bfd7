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

	"github.com/notargets/gohalo/coloring/aggregate"
	"github.com/notargets/gohalo/coloring/box"
	"github.com/notargets/gohalo/comm"
)

type ModelBox struct {
	Grid, Colors            []int
	Ranks                   int
	Ghosts, Domain, ThruDim int
}

// BoxCmd represents the box command
var BoxCmd = &cobra.Command{
	Use:   "box",
	Short: "Color a structured grid into boxes",
	Long: `
Splits a structured grid into one block per rank and prints the exclusive,
shared, ghost and domain halo boxes of every rank.

gohalo box -G 12,9 -n 9 --ghosts 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mb := &ModelBox{}
		mb.Grid, _ = cmd.Flags().GetIntSlice("grid")
		mb.Colors, _ = cmd.Flags().GetIntSlice("colors")
		mb.Ranks, _ = cmd.Flags().GetInt("ranks")
		mb.Ghosts, _ = cmd.Flags().GetInt("ghosts")
		mb.Domain, _ = cmd.Flags().GetInt("domain")
		mb.ThruDim, _ = cmd.Flags().GetInt("thru")
		if len(mb.Grid) == 0 {
			return fmt.Errorf("must supply a grid (-G, --grid), e.g. -G 16,16")
		}
		_, err := RunBox(mb, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(BoxCmd)
	BoxCmd.Flags().IntSliceP("grid", "G", nil, "cells per axis")
	BoxCmd.Flags().IntSliceP("colors", "c", nil, "colors per axis, factored from the rank count when omitted")
	BoxCmd.Flags().IntP("ranks", "n", 1, "number of ranks")
	BoxCmd.Flags().Int("ghosts", 1, "ghost layers between blocks")
	BoxCmd.Flags().Int("domain", 1, "halo layers around the domain")
	BoxCmd.Flags().Int("thru", 0, "lowest dimension of the entities through which blocks are ghosted")
}

func RunBox(mb *ModelBox, out io.Writer) ([]*box.AggregateInfo, error) {
	if len(mb.Colors) == 0 {
		mb.Colors = FactorColors(mb.Ranks, mb.Grid)
	}
	var (
		w     = comm.NewWorld(mb.Ranks)
		bcs   = make([]*box.Coloring, mb.Ranks)
		infos = make([]*box.AggregateInfo, mb.Ranks)
	)
	err := w.Run(func(c *comm.Comm) error {
		bc, err := box.Color(mb.Grid, mb.Ghosts, mb.Domain, mb.ThruDim, mb.Colors, c.Rank(), c.Size())
		if err != nil {
			return err
		}
		bcs[c.Rank()] = bc
		infos[c.Rank()], err = aggregate.GatherBoxes(c, bc)
		return err
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "grid %v over colors %v\n", mb.Grid, mb.Colors)
	for r, bc := range bcs {
		fmt.Fprintf(out, "rank %d %v: partition %v exclusive %v overlay %v\n",
			r, bc.Index, bc.Partition, bc.Exclusive, bc.Overlay)
		for _, s := range bc.Shared {
			fmt.Fprintf(out, "\tshared %v with %v\n", s.Box, s.Colors)
		}
		for _, g := range bc.Ghost {
			fmt.Fprintf(out, "\tghost  %v from %d\n", g.Box, g.Color)
		}
		for _, h := range bc.DomainHalo {
			fmt.Fprintf(out, "\thalo   %v\n", h)
		}
	}
	return infos, nil
}

// FactorColors spreads ranks over the axes of grid, giving each prime factor
// of ranks, largest first, to the axis with the most cells per color.
func FactorColors(ranks int, grid []int) []int {
	colors := make([]int, len(grid))
	for d := range colors {
		colors[d] = 1
	}
	var factors []int
	for n, p := ranks, 2; n > 1; {
		if p*p > n {
			factors = append(factors, n)
			break
		}
		if n%p == 0 {
			factors = append(factors, p)
			n /= p
		} else {
			p++
		}
	}
	for i := len(factors) - 1; i >= 0; i-- {
		best := 0
		for d := range grid {
			if grid[d]*colors[best] > grid[best]*colors[d] {
				best = d
			}
		}
		colors[best] *= factors[i]
	}
	return colors
}
