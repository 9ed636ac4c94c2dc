// inspect is a small operator tool that walks the raw pebble key space
// of a tradetalk database: conversations, message logs and directory
// rows. Useful when debugging a store offline; do not point it at a DB
// a live server has open.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/store"
)

func main() {
	var (
		dbPath string
		prefix string
		conv   string
		raw    bool
	)
	flag.StringVar(&dbPath, "db", "", "pebble DB path (required)")
	flag.StringVar(&prefix, "prefix", "", "list keys under this prefix (e.g. conv:, account:, msgid:)")
	flag.StringVar(&conv, "conv", "", "dump all messages of a conversation ID")
	flag.BoolVar(&raw, "raw", false, "print raw stored values instead of re-marshaled JSON")
	flag.Parse()

	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init()
	if err := store.Open(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	switch {
	case conv != "":
		msgs, err := store.ListConversationMessages(conv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list messages: %v\n", err)
			os.Exit(1)
		}
		for _, m := range msgs {
			b, _ := json.Marshal(m)
			fmt.Println(string(b))
		}
		fmt.Fprintf(os.Stderr, "%d messages\n", len(msgs))

	case prefix != "":
		keys, err := store.ListKeys(prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
			os.Exit(1)
		}
		for _, k := range keys {
			if raw {
				v, err := store.GetKey(k)
				if err != nil {
					fmt.Printf("%s\t<error: %v>\n", k, err)
					continue
				}
				fmt.Printf("%s\t%s\n", k, v)
			} else {
				fmt.Println(k)
			}
		}
		fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))

	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass --prefix or --conv")
		os.Exit(2)
	}
}
