// stashctl is an operator tool for inspecting and clearing the persistent
// cache backend directly.
//
// Usage:
//
//	stashctl [flags] stats
//	stashctl [flags] clear-prefix <prefix>
//	stashctl [flags] clear-all
//	stashctl [flags] remove <key>
//
// Flags select the Redis backend (-addr, -password, -db).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nestfall/stash/research"
	"github.com/nestfall/stash/store"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "redis address")
	password := flag.String("password", "", "redis password")
	db := flag.Int("db", 0, "redis database")
	timeout := flag.Duration("timeout", 30*time.Second, "command timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	kv := store.NewRedis(*addr, *password, *db)
	defer kv.Close()
	if err := kv.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis %s unreachable: %v\n", *addr, err)
		os.Exit(1)
	}
	st := store.New(kv, store.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))

	switch cmd := args[0]; cmd {
	case "stats":
		stats := st.Stats(ctx, research.Namespaces()...)
		fmt.Printf("entries: %d\n", stats.TotalItems)
		fmt.Printf("size:    %d bytes\n", stats.TotalSize)
		for _, ns := range append(research.Namespaces(), "other") {
			if n := stats.ItemsByNamespace[ns]; n > 0 {
				fmt.Printf("  %-20s %d\n", ns, n)
			}
		}
	case "clear-prefix":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		removed := st.ClearByPrefix(ctx, args[1])
		fmt.Printf("removed %d entries under %q\n", removed, args[1])
	case "clear-all":
		removed := st.ClearAll(ctx)
		fmt.Printf("removed %d entries\n", removed)
	case "remove":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		if st.Remove(ctx, args[1]) {
			fmt.Printf("removed %q\n", args[1])
		} else {
			fmt.Fprintf(os.Stderr, "remove %q failed\n", args[1])
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: stashctl [flags] stats|clear-prefix <prefix>|clear-all|remove <key>")
	flag.PrintDefaults()
}
