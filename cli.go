package main

import (
	"fmt"
	"os"
	"time"

	"duskrelay/store"
)

// Version is the CLI-reported build version.
const Version = "0.1.0"

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("duskrelay %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "tokens":
		return cliTokens(args[1:], dbPath)
	default:
		return false
	}
}

func cliStatus(dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	users, messages, calls, err := st.Counts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", users)
	fmt.Printf("Messages: %d\n", messages)
	fmt.Printf("Calls: %d\n", calls)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliTokens(args []string, dbPath string) bool {
	if len(args) == 0 || args[0] != "prune" {
		fmt.Fprintf(os.Stderr, "Usage: duskrelay tokens prune\n")
		os.Exit(1)
		return true
	}

	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	n, err := st.PruneExpiredTokens(time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error pruning tokens: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pruned %d expired token(s)\n", n)
	return true
}
