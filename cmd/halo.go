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
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/coloring"
	"github.com/notargets/gohalo/coloring/ownership"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/exchange"
	"github.com/notargets/gohalo/utils"
)

// HaloCmd represents the halo command
var HaloCmd = &cobra.Command{
	Use:   "halo",
	Short: "Time ghost exchanges of dense, ragged and global fields",
	Long: `
Colors a mesh, registers the fields of the input file (a dense and a ragged
cell field plus a global one by default) and runs write and read tasks on
them, checking every ghost after each exchange.

gohalo halo -G 64,64 -n 8 -b legion -i 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, err := loadParameters(cmd)
		if err != nil {
			return err
		}
		ip.Print()
		_, err = RunHalo(ip, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(HaloCmd)
	addColoringFlags(HaloCmd)
	HaloCmd.Flags().StringP("backend", "b", "", "exchange backend: mpi, legion or hpx")
	HaloCmd.Flags().IntP("iterations", "i", 1, "write and read tasks per field")
}

// HaloReport is the result of one rank.
type HaloReport struct {
	Rank         int
	Exchanges    map[string]int
	Elapsed      time.Duration
	Instructions uint64
	Measured     bool
}

var defaultFields = map[string]InputParameters.FieldIn{
	"density": {Space: "cells", Kind: "dense", ElemSize: 8},
	"stencil": {Space: "cells", Kind: "ragged", ElemSize: 4, MaxEntries: 4},
	"dt":      {Kind: "global", ElemSize: 8},
}

func fieldRecords(fields map[string]InputParameters.FieldIn) (recs []coloring.FieldRecord, vertices bool, err error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		fi := fields[name]
		rec := coloring.FieldRecord{ID: exchange.FieldID(i), Name: name, ElemSize: fi.ElemSize, MaxEntries: fi.MaxEntries}
		switch fi.Kind {
		case "", "dense":
			rec.Kind = exchange.Dense
		case "global":
			rec.Kind = exchange.Global
		case "sparse":
			rec.Kind = exchange.Sparse
		case "ragged":
			rec.Kind = exchange.Ragged
		default:
			return nil, false, fmt.Errorf("field %s: unknown kind %q", name, fi.Kind)
		}
		switch fi.Space {
		case "", "cells":
			rec.IndexSpace = coloring.Cells
		case "vertices":
			rec.IndexSpace = coloring.Vertices
			vertices = vertices || rec.Kind != exchange.Global
		default:
			return nil, false, fmt.Errorf("field %s: unknown index space %q", name, fi.Space)
		}
		recs = append(recs, rec)
	}
	return
}

// pattern is the content task it writes into element j of entity gid.
func pattern(gid, it, j int) byte { return byte(gid*31 + it*7 + j) }

func rowFor(f *exchange.Field, gid, it int) []byte {
	n := f.RowStride()
	if f.IsRowed() {
		n = ((gid + it) % (f.MaxEntries + 1)) * f.ElemSize
	}
	b := make([]byte, n)
	for j := range b {
		b[j] = pattern(gid, it, j)
	}
	return b
}

// RunHalo colors the mesh of ip, then runs ip.Iterations write and read tasks
// on every field with the configured backend.
func RunHalo(ip *InputParameters.ColoringParameters, out io.Writer) ([]*HaloReport, error) {
	def, err := loadMesh(ip)
	if err != nil {
		return nil, err
	}
	if len(ip.Fields) == 0 {
		ip.Fields = defaultFields
	}
	recs, vertices, err := fieldRecords(ip.Fields)
	if err != nil {
		return nil, err
	}
	backend, err := exchange.ParseBackend(ip.Backend)
	if err != nil {
		return nil, err
	}
	cl, err := newColorer(ip, false)
	if err != nil {
		return nil, err
	}
	cl.Vertices = cl.Vertices || vertices

	var (
		w       = comm.NewWorld(ip.Ranks)
		reports = make([]*HaloReport, ip.Ranks)
	)
	err = w.Run(func(c *comm.Comm) error {
		ctx, err := cl.Color(c, def)
		if err != nil {
			return err
		}
		fields := make([]*exchange.Field, len(recs))
		for i, rec := range recs {
			if err = ctx.RegisterField(rec); err != nil {
				return err
			}
			if fields[i], err = ctx.NewField(rec.ID, 1); err != nil {
				return err
			}
		}
		l, err := ctx.Lifecycle(c, backend, fields...)
		if err != nil {
			return err
		}
		rep := &HaloReport{Rank: c.Rank(), Exchanges: make(map[string]int)}
		start := time.Now()
		rep.Instructions, rep.Measured, err = countInstructions(c.Log, func() error {
			for it := 0; it < ip.Iterations; it++ {
				for _, f := range fields {
					if err := runTasks(c, ctx, l, f, it); err != nil {
						utils.Fatal(c.Log, err, "verify")
					}
				}
			}
			return nil
		})
		rep.Elapsed = time.Since(start)
		c.Log.Debug().Str("mem", utils.GetMemUsage()).Dur("elapsed", rep.Elapsed).Msg("halo tasks done")
		for _, f := range fields {
			rep.Exchanges[f.Name] = l.Exchanges(f)
		}
		reports[c.Rank()] = rep
		return err
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "backend %s, %d iterations\n", backend, ip.Iterations)
	for _, rep := range reports {
		fmt.Fprintf(out, "rank %4d: %12v", rep.Rank, rep.Elapsed)
		if rep.Measured {
			fmt.Fprintf(out, " %14d instructions", rep.Instructions)
		}
		fmt.Fprintf(out, " exchanges %v\n", rep.Exchanges)
	}
	return reports, nil
}

// runTasks writes iteration it into the owned rows of f and checks the
// ghosts in a following read task.
func runTasks(c *comm.Comm, ctx *coloring.Context, l *exchange.Lifecycle, f *exchange.Field, it int) error {
	if f.Kind == exchange.Global {
		if err := l.Run(f, exchange.Uniform(exchange.ReadWrite), func() error {
			if c.Rank() == 0 {
				copy(f.Data, rowFor(f, 0, it))
			}
			return nil
		}); err != nil {
			return err
		}
		return l.Run(f, exchange.Uniform(exchange.ReadOnly), func() error {
			if !bytes.Equal(f.Data, rowFor(f, 0, it)) {
				return fmt.Errorf("global %s holds %v", f.Name, f.Data)
			}
			return nil
		})
	}
	ic, _ := ctx.IndexColoring(f.IndexSpace)
	var (
		owned  = append(ic.IDs(ownership.Exclusive), ic.IDs(ownership.Shared)...)
		ghosts = ic.IDs(ownership.Ghost)
	)
	write := exchange.Permissions{Exclusive: exchange.WriteOnly, Shared: exchange.WriteOnly}
	if err := l.Run(f, write, func() error {
		for i, gid := range owned {
			if f.IsRowed() {
				if err := f.SetRow(i, rowFor(f, gid, it)); err != nil {
					return err
				}
			} else {
				copy(f.Row(i), rowFor(f, gid, it))
			}
		}
		return nil
	}); err != nil {
		return err
	}
	read := exchange.Permissions{Exclusive: exchange.ReadOnly, Shared: exchange.ReadOnly, Ghost: exchange.ReadOnly}
	return l.Run(f, read, func() error {
		for _, gid := range ghosts {
			_, row, _ := ctx.Row(f.IndexSpace, gid)
			if got, want := f.LiveRow(row), rowFor(f, gid, it); !bytes.Equal(got, want) {
				return fmt.Errorf("field %s ghost %d: got %v, want %v", f.Name, gid, got, want)
			}
		}
		return nil
	})
}
