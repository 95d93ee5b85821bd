package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/kollectcare/trialsync/internal/client/models"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s = s + string(a.Mode)
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to TrialSync CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	a.Login(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.SyncInterval)

	for {
		fmt.Printf("tsync %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Commands: register, login, add, baseline <id>, followup <id>,")
			fmt.Println("  list, show <id>, drafts <id>, watch <id>, unwatch <id>,")
			fmt.Println("  sync, status, clear, exit")

		case "register":
			a.Register(ctx)
		case "login":
			a.Login(ctx)
		case "add":
			a.save(ctx, "", models.DataTypePatient)
		case "baseline":
			if len(args) == 1 {
				a.save(ctx, args[0], models.DataTypeBaseline)
			} else {
				fmt.Println("usage: baseline <patient_id>")
			}
		case "followup":
			if len(args) == 1 {
				a.save(ctx, args[0], models.DataTypeFollowup)
			} else {
				fmt.Println("usage: followup <patient_id>")
			}
		case "list":
			a.list(ctx)
		case "show":
			if len(args) == 1 {
				a.show(ctx, args[0])
			} else {
				fmt.Println("usage: show <patient_id>")
			}
		case "drafts":
			if len(args) == 1 {
				a.drafts(ctx, args[0])
			} else {
				fmt.Println("usage: drafts <patient_id>")
			}
		case "watch":
			if len(args) == 1 {
				if err := a.controller.Watch(ctx, args[0]); err != nil {
					log.Printf("watch failed: %v", err)
				}
			} else {
				fmt.Println("usage: watch <patient_id>")
			}
		case "unwatch":
			if len(args) == 1 {
				a.controller.Unwatch(args[0])
			} else {
				fmt.Println("usage: unwatch <patient_id>")
			}
		case "sync":
			a.sync(ctx)
		case "status":
			a.status(ctx)
		case "clear":
			a.clear(ctx)
		case "exit", "quit":
			return
		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
}
