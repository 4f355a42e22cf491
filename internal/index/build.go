package index

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

// BuildFromDir ingests every *.blocks file under dir into a fresh Index.
// Parsing is parallelized across a worker pool bounded by workers (workers
// <= 0 means runtime.NumCPU()); ingestion itself runs on the calling
// goroutine so that family_id/sample_id allocation stays single-writer.
// Files are dispatched in lexicographic order so that two runs over the
// same directory produce identical ids.
func BuildFromDir(ctx context.Context, dir string, workers int) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "list blocks directory")
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".blocks") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	idx := New()
	if len(paths) == 0 {
		klog.Warningf("index: no .blocks files found under %s", dir)
		return idx, nil
	}

	bar := progressbar.Default(int64(len(paths)), "aggregating blockhash reports")
	defer bar.Close()

	// Parsing runs concurrently but lands in a slot fixed by each file's
	// position in the sorted path list, so ingestion order -- and therefore
	// sample_id/family_id assignment -- never depends on goroutine
	// scheduling, only on the directory's contents.
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	parsed := make([]*report.BlockhashReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rep, err := report.Load(p)
			if err != nil {
				klog.Errorf("index: skipping %s: %v", p, err)
				return nil
			}
			parsed[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "aggregate blockhash reports")
	}

	for _, rep := range parsed {
		if rep == nil {
			continue
		}
		if _, err := idx.Ingest(rep); err != nil {
			klog.Errorf("index: failed to ingest %s: %v", rep.Filename, err)
		}
		_ = bar.Add(1)
	}
	return idx, nil
}
