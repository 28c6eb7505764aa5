// Package main implements a small interactive console for operators to poke
// a running cattackle-core instance's admin/health HTTP surface without
// reaching for curl: "health", "reload", and "list" against --addr.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

func main() {
	addr := "http://localhost:8080"

	for i, arg := range os.Args {
		if arg == "--addr" && i+1 < len(os.Args) {
			addr = os.Args[i+1]
		}
	}

	// A plain, promptless console when stdin isn't a terminal (piped
	// input, e.g. scripting) matches the teacher's own ColorAuto-style TTY
	// detection rather than always printing a prompt meant for a human.
	prompt := "cattackle> "
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = ""
	}

	rl, err := readline.NewEx(&readline.Config{ //nolint:exhaustruct // use default values
		Prompt: prompt,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close() //nolint:errcheck

	client := &http.Client{}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)

			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		dispatch(client, addr, line)
	}
}

func dispatch(client *http.Client, addr, cmd string) {
	var (
		method string
		path   string
	)

	switch cmd {
	case "health":
		method, path = http.MethodGet, "/health"
	case "reload":
		method, path = http.MethodPost, "/admin/reload"
	case "list":
		method, path = http.MethodGet, "/cattackles"
	case "help":
		fmt.Println("commands: health, reload, list, help, quit")

		return
	case "quit", "exit":
		os.Exit(0)
	default:
		fmt.Printf("unknown command %q; try \"help\"\n", cmd)

		return
	}

	req, err := http.NewRequest(method, addr+path, nil) //nolint:noctx // interactive, one-off console command
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return
	}
	defer resp.Body.Close() //nolint:errcheck

	var pretty any
	if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to decode response: %v\n", err)

		return
	}

	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}
