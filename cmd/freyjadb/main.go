// Command freyjadb is a smoke-test harness for the engine: it opens a
// store under a freshly ksuid-tagged path, runs a handful of point and
// range operations against it, and logs what it observed. It exists so the
// engine can be exercised end-to-end without a CLI or server layer, both of
// which are out of scope here.
package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/freyjadb/pkg/bptreefile"
	"github.com/ssargent/freyjadb/pkg/config"
	"github.com/ssargent/freyjadb/pkg/metrics"
)

func main() {
	cfg := config.DefaultConfig()

	runID := ksuid.New().String()
	storePath := filepath.Join(cfg.DataDir, "smoke-"+runID)

	tree, err := bptreefile.Open(storePath,
		bptreefile.WithMetrics(metrics.NewCollector()),
		bptreefile.WithFsyncInterval(cfg.FsyncInterval),
	)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := tree.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	log.Printf("opened store at %s.{idx,dat}", storePath)

	for key := uint64(1); key <= 10; key++ {
		value := []byte(fmt.Sprintf("value-%d", key))
		if _, err := tree.Insert(key, value); err != nil {
			log.Fatalf("insert %d: %v", key, err)
		}
	}

	if value, ok, err := tree.Find(5); err != nil {
		log.Fatalf("find 5: %v", err)
	} else if ok {
		log.Printf("found key 5: %s", value)
	}

	values, err := tree.FindRange(3, 8)
	if err != nil {
		log.Fatalf("range [3, 8): %v", err)
	}
	log.Printf("range [3, 8) returned %d values", len(values))

	if _, err := tree.Erase(5); err != nil {
		log.Fatalf("erase 5: %v", err)
	}

	if _, ok, err := tree.Find(5); err != nil {
		log.Fatalf("find 5 after erase: %v", err)
	} else if !ok {
		log.Printf("key 5 erased as expected")
	}
}
