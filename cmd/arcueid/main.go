// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/qyqx/arcueid/config"
	"github.com/qyqx/arcueid/gc"
	"github.com/qyqx/arcueid/interp"
	"github.com/qyqx/arcueid/memheap"
)

var (
	dashe      = flag.String("e", "", "evaluate this expression and exit")
	configPath = flag.String("config", "arcueid.yaml", "runtime tuning file")
	verbose    = flag.Bool("v", false, "verbose diagnostics")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	ic, err := interp.New(interp.Config{
		GC: gc.Config{
			MinQuanta: cfg.GC.MinQuanta,
			MaxQuanta: cfg.GC.MaxQuanta,
			Heap: memheap.Config{
				MinExpansion: cfg.Heap.MinExpansionBytes,
				OverPercent:  cfg.Heap.OverPercent,
			},
		},
		Quantum:    cfg.Scheduler.Quantum,
		StackWords: cfg.Scheduler.StackWords,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer ic.Close()
	if *verbose {
		interp.Errorf = log.Printf
	}

	switch {
	case *dashe != "":
		os.Exit(evalAndPrint(ic, *dashe, true))
	case flag.NArg() > 0:
		buf, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(evalAndPrint(ic, string(buf), false))
	default:
		repl(ic)
	}
}

func evalAndPrint(ic *interp.Interp, src string, print bool) int {
	v, err := ic.EvalString(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if print {
		fmt.Println(ic.WriteRepr(v))
	}
	return 0
}

func repl(ic *interp.Interp) {
	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("arc> ")
		line, err := in.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			log.Fatal(err)
		}
		if line == "\n" {
			continue
		}
		v, err := ic.EvalString(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Println(ic.WriteRepr(v))
	}
}
