// Command scotbench is the throughput/retention benchmark driver from
// spec.md §6.2, grounded on _examples/original_source/SCOT/bench.cpp and
// BenchmarkLists.hpp: it wires a chosen container/reclaimer pair through a
// prefill-then-mixed-workload run, repeated numRuns times, and reports
// per-run and median/min/max aggregates.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/utils"

	"github.com/lockfree-go/scot/internal/workload"
	"github.com/lockfree-go/scot/list"
	"github.com/lockfree-go/scot/reclaim"
	"github.com/lockfree-go/scot/reclaim/ebr"
	"github.com/lockfree-go/scot/reclaim/he"
	"github.com/lockfree-go/scot/reclaim/hp"
	"github.com/lockfree-go/scot/reclaim/hyaline"
	"github.com/lockfree-go/scot/reclaim/ibr"
	"github.com/lockfree-go/scot/reclaim/nr"
	"github.com/lockfree-go/scot/tree"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scotbench <list|tree> <test_length_seconds> <element_size> <num_runs> <read_pct> <insert_pct> <delete_pct> <HP|EBR|NR|IBR|HE|HYALINE> [num_threads]

Percentages must be between 0 and 100 and must not sum to more than 100.`)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// container is the subset of behavior scotbench needs out of either the
// list or the tree package, uniting them behind one driver loop.
type container interface {
	workload.Container[int]
	CalculateSpace(tid int) int64
}

func run(args []string) int {
	if len(args) < 8 {
		usage()
		return 1
	}

	ds := args[0]
	if ds != "list" && ds != "tree" {
		fmt.Fprintln(os.Stderr, "first argument must be list or tree")
		return 1
	}

	testLengthSeconds, err1 := strconv.Atoi(args[1])
	elementSize, err2 := strconv.Atoi(args[2])
	numRuns, err3 := strconv.Atoi(args[3])
	readPct, err4 := parsePercent(args[4])
	insertPct, err5 := parsePercent(args[5])
	deletePct, err6 := parsePercent(args[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil ||
		testLengthSeconds <= 0 || elementSize <= 0 || numRuns <= 0 {
		usage()
		return 1
	}
	if readPct < 0 || readPct > 100 || insertPct < 0 || insertPct > 100 || deletePct < 0 || deletePct > 100 {
		fmt.Fprintln(os.Stderr, "percentages must be between 0 and 100")
		return 1
	}
	if readPct+insertPct+deletePct > 100 {
		fmt.Fprintln(os.Stderr, "sum of read, insert, and delete percentages must not exceed 100")
		return 1
	}

	scheme := strings.ToUpper(args[7])
	switch scheme {
	case "HP", "EBR", "NR", "IBR", "HE", "HYALINE":
	default:
		fmt.Fprintln(os.Stderr, "invalid reclamation strategy, use: HP | EBR | NR | IBR | HE | HYALINE")
		return 1
	}

	maxThreads := runtime.NumCPU()
	if len(args) >= 9 {
		n, err := strconv.Atoi(args[8])
		if err != nil || n <= 0 {
			fmt.Fprintln(os.Stderr, "invalid thread count")
			return 1
		}
		maxThreads = n
	}

	cfg := workload.Config{ElementSize: elementSize, ReadPct: readPct, InsertPct: insertPct, DeletePct: deletePct, Seed: 1}
	opsPerRun := make([]int64, numRuns)
	memPerRun := make([]int64, numRuns)

	for irun := 0; irun < numRuns; irun++ {
		c, tids := build(ds, scheme, maxThreads)
		workload.Prefill[int](c, elementSize, tids[0], cfg.Seed)

		stats := haxmap.New[int, int64]()
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(testLengthSeconds)*time.Second)

		var wg sync.WaitGroup
		var liveMu sync.Mutex
		live := hashset.New()
		wg.Add(len(tids))
		for _, tid := range tids {
			tid := tid
			go func() {
				defer wg.Done()
				ops := workload.RunMixed[int](ctx, c, cfg, tid, live, &liveMu)
				stats.Set(tid, ops)
			}()
		}
		wg.Wait()
		cancel()

		var totalOps int64
		stats.ForEach(func(_ int, v int64) bool {
			totalOps += v
			return true
		})

		var totalMem int64
		for _, tid := range tids {
			totalMem += c.CalculateSpace(tid)
		}

		opsPerRun[irun] = totalOps / int64(testLengthSeconds)
		memPerRun[irun] = totalMem

		fmt.Printf("\n#### RUN %d RESULT: ####\n", irun+1)
		fmt.Printf("----- ds=%s numElements=%d numThreads=%d reclaimer=%s testLength=%ds -----\n",
			ds, elementSize, maxThreads, scheme, testLengthSeconds)
		fmt.Printf("Ops/sec = %d\n", opsPerRun[irun])
		fmt.Printf("retained_nodes = %d\n", memPerRun[irun])
	}

	printAggregate("Ops/sec", opsPerRun)
	printAggregate("retained_nodes", memPerRun)
	return 0
}

func parsePercent(s string) (int, error) {
	return strconv.Atoi(strings.TrimSuffix(s, "%"))
}

func printAggregate(label string, vals []int64) {
	boxed := make([]interface{}, len(vals))
	for i, v := range vals {
		boxed[i] = v
	}
	utils.Sort(boxed, utils.Int64Comparator)

	lo, hi := boxed[0].(int64), boxed[len(boxed)-1].(int64)
	median := boxed[len(boxed)/2].(int64)
	var delta int64
	if median != 0 {
		delta = int64(100 * float64(hi-lo) / float64(median))
	}
	fmt.Printf("\n###### MEDIAN RESULT FOR ALL %d RUNS (%s): ######\n", len(vals), label)
	fmt.Printf("%s = %d   delta = %d%%   min = %d   max = %d\n", label, median, delta, lo, hi)
}

// build constructs a fresh container and its full pool of registered tids
// for one benchmark run, wiring the chosen reclamation scheme to the node
// type the ds argument selects.
func build(ds, scheme string, maxThreads int) (container, []int) {
	switch ds {
	case "list":
		rec := buildListReclaimer(scheme, maxThreads)
		c := list.NewHarrisMichael[int](rec, nil)
		return c, registerAll(rec, maxThreads)
	default:
		rec := buildTreeReclaimer(scheme, maxThreads)
		c := tree.New[int](rec)
		return c, registerAll(rec, maxThreads)
	}
}

func registerAll[N reclaim.Node[N]](rec reclaim.Reclaimer[N], maxThreads int) []int {
	tids := make([]int, 0, maxThreads)
	for i := 0; i < maxThreads; i++ {
		tid, ok := rec.Register()
		if !ok {
			panic(reclaim.ErrExhausted)
		}
		tids = append(tids, tid)
	}
	return tids
}

func buildListReclaimer(scheme string, maxThreads int) reclaim.Reclaimer[*list.Node[int]] {
	slots := list.NumProtectionSlots()
	switch scheme {
	case "HP":
		return hp.New[*list.Node[int]](slots, maxThreads)
	case "HE":
		return he.New[*list.Node[int]](slots, maxThreads)
	case "IBR":
		return ibr.New[*list.Node[int]](maxThreads)
	case "HYALINE":
		return hyaline.New[*list.Node[int]](maxThreads)
	case "NR":
		return nr.New[*list.Node[int]](maxThreads)
	default:
		return ebr.New[*list.Node[int]](maxThreads)
	}
}

func buildTreeReclaimer(scheme string, maxThreads int) reclaim.Reclaimer[*tree.Node[int]] {
	slots := tree.NumProtectionSlots()
	switch scheme {
	case "HP":
		return hp.New[*tree.Node[int]](slots, maxThreads)
	case "HE":
		return he.New[*tree.Node[int]](slots, maxThreads)
	case "IBR":
		return ibr.New[*tree.Node[int]](maxThreads)
	case "HYALINE":
		return hyaline.New[*tree.Node[int]](maxThreads)
	case "NR":
		return nr.New[*tree.Node[int]](maxThreads)
	default:
		return ebr.New[*tree.Node[int]](maxThreads)
	}
}
