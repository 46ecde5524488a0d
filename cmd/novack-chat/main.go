package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	chatclient "github.com/Novack-secure/novack-chat-client"
	"github.com/Novack-secure/novack-chat-client/internal/config"
	"github.com/Novack-secure/novack-chat-client/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := logging.New(cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	token := cfg.Auth.Token
	if env := os.Getenv("NOVACK_CHAT_TOKEN"); env != "" {
		token = env
	}
	if token == "" {
		log.Fatal("no token: set auth.token or NOVACK_CHAT_TOKEN")
	}

	client, err := chatclient.New(chatclient.Config{
		ServerURL:    cfg.Server.URL,
		Credentials:  chatclient.NewMemoryCredentials(token),
		HistoryLimit: cfg.Chat.HistoryLimit,
		Log:          logger,
		Events: chatclient.Events{
			TimelineChanged: func() {},
			StateChanged: func(st chatclient.State) {
				fmt.Printf("-- connection: %s\n", st)
			},
			UserTyping: func(roomID, userID string, isTyping bool) {
				if isTyping {
					fmt.Printf("-- %s is typing in %s\n", userID, roomID)
				}
			},
		},
	})
	if err != nil {
		log.Fatalf("client init: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	err = client.OnAuthenticated(ctx)
	cancel()
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	printRooms(client)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		client.Close()
		os.Exit(0)
	}()

	repl(client)
}

func printRooms(client *chatclient.Client) {
	rooms := client.Rooms()
	fmt.Printf("%d rooms:\n", len(rooms))
	for _, r := range rooms {
		preview := ""
		if r.LastMessage != nil {
			preview = r.LastMessage.Content
		}
		fmt.Printf("  [%s] %s (%s, unread %d) %s\n", r.ID, r.Name, r.RoomType, r.UnreadCount, preview)
	}
}

func repl(client *chatclient.Client) {
	fmt.Println("commands: /rooms /open <id> /close /read /bot <supplierId> <text> /quit; anything else sends to the open room")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ctx := context.Background()

		switch {
		case line == "/quit":
			return
		case line == "/rooms":
			printRooms(client)
		case line == "/close":
			client.CloseRoom(ctx)
		case line == "/read":
			if room, ok := client.CurrentRoom(); ok {
				if err := client.MarkAsRead(ctx, room.ID); err != nil {
					fmt.Printf("!! mark read: %v\n", err)
				}
			}
		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := client.OpenRoom(ctx, id); err != nil {
				fmt.Printf("!! open: %v\n", err)
				continue
			}
			for _, m := range client.Timeline() {
				fmt.Printf("  %s: %s\n", m.SenderID, m.Content)
			}
		case strings.HasPrefix(line, "/bot "):
			rest := strings.SplitN(strings.TrimPrefix(line, "/bot "), " ", 2)
			if len(rest) != 2 {
				fmt.Println("usage: /bot <supplierId> <text>")
				continue
			}
			if err := client.SendToBot(ctx, rest[1], rest[0]); err != nil {
				fmt.Printf("!! bot send: %v\n", err)
			}
		default:
			if err := client.Send(ctx, line); err != nil {
				fmt.Printf("!! send failed, message retracted: %v\n", err)
			}
		}
	}
}
