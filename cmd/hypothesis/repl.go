package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Chat with the agent from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stack, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer stack.cleanup(context.Background())

		sessionID := uuid.New().String()
		fmt.Println("hypothesis agent. Ask a biomedical question, or type exit to quit.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			case "clear":
				sessionID = uuid.New().String()
				fmt.Println("started a fresh session")
				continue
			}

			reply, err := stack.orch.HandleTurn(ctx, sessionID, line)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Printf("error: %v\n", err)
				continue
			}

			fmt.Printf("\n[%s] %s\n", reply.Mode, reply.Reply)
			if len(reply.FollowUps) > 0 {
				fmt.Println("you could ask next:")
				for _, q := range reply.FollowUps {
					fmt.Printf("  - %s\n", q)
				}
			}
			fmt.Println()
		}
	},
}
