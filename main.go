package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"duskrelay/store"
)

func main() {
	if len(os.Args) > 1 {
		cliDB := "duskrelay.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	streamAddr := flag.String("stream-addr", ":1234", "stream transport listen address")
	wsAddr := flag.String("ws-addr", ":8080", "message transport (websocket) listen address")
	dbPath := flag.String("db", "duskrelay.db", "SQLite database path")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "websocket HTTP idle timeout")
	flag.Parse()

	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()

	if n, err := st.PruneExpiredTokens(time.Now()); err != nil {
		log.Printf("[store] startup token prune: %v", err)
	} else if n > 0 {
		log.Printf("[store] pruned %d expired token(s) at startup", n)
	}

	hub := NewHub(st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	srv := NewServer(*streamAddr, *wsAddr, hub, *idleTimeout)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[server] %v", err)
	}
}
