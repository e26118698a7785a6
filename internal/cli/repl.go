package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Guest(ctx context.Context) error
	List(ctx context.Context) error
	Use(ctx context.Context) error
	Items(ctx context.Context) error
	AddCollection(ctx context.Context) error
	AddReminder(ctx context.Context) error
	DeleteReminder(ctx context.Context) error
	RenameCollection(ctx context.Context) error
	DropCollection(ctx context.Context) error
	Share(ctx context.Context) error
	Friends(ctx context.Context) error
	Invite(ctx context.Context) error
	Requests(ctx context.Context) error
	Accept(ctx context.Context) error
	Decline(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the FloatNote CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           — show available commands
//	  - register       — create an account
//	  - login          — authenticate
//	  - guest          — use the app locally, no account
//	  - exit | quit    — leave the program
//
//	Logged in:
//	  - help           — show available commands
//	  - list           — list visible collections
//	  - use            — pick the active collection
//	  - items          — show the active collection's reminders
//	  - add            — create a collection
//	  - remind         — add a reminder to the active collection
//	  - done           — delete a reminder
//	  - rename         — rename the active collection (owner only)
//	  - drop           — delete the active collection (owner only)
//	  - share          — set who the active collection is shared with
//	  - friends        — list accepted friends
//	  - invite         — send a friend request
//	  - requests       — list pending incoming requests
//	  - accept | decline — answer a request
//	  - sync           — run a sync cycle now
//	  - status         — connection, watcher and session state
//	  - logout         — end the session
//	  - exit | quit    — leave the program
//
// Any errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("fn> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, use, items, add, remind, done, rename, drop, share, friends, invite, requests, accept, decline, sync, status, logout, exit")
			} else {
				printlnFn("Available commands: register, login, guest, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "guest":
			_ = a.Guest(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "use":
			_ = a.Use(ctx)

		case "items":
			_ = a.Items(ctx)

		case "add":
			_ = a.AddCollection(ctx)

		case "remind":
			_ = a.AddReminder(ctx)

		case "done":
			_ = a.DeleteReminder(ctx)

		case "rename":
			_ = a.RenameCollection(ctx)

		case "drop":
			_ = a.DropCollection(ctx)

		case "share":
			_ = a.Share(ctx)

		case "friends":
			_ = a.Friends(ctx)

		case "invite":
			_ = a.Invite(ctx)

		case "requests":
			_ = a.Requests(ctx)

		case "accept":
			_ = a.Accept(ctx)

		case "decline":
			_ = a.Decline(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "status":
			_ = a.Status(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
