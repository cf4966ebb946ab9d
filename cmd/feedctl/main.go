package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/TheYuriG/feedsync/internal/api"
	"github.com/TheYuriG/feedsync/internal/config"
	"github.com/TheYuriG/feedsync/internal/feed"
	"github.com/TheYuriG/feedsync/internal/push"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		email      string
		password   string
	)
	flag.StringVar(&configPath, "config", "feedctl.toml", "path to the TOML config file")
	flag.StringVar(&email, "email", "", "login email (overrides config)")
	flag.StringVar(&password, "password", "", "login password (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if email != "" {
		cfg.Email = email
	}
	if password != "" {
		cfg.Password = password
	}
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("email and password are required (flags, config file, or FEEDSYNC_EMAIL / FEEDSYNC_PASSWORD)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := api.NewClient(cfg.ServerURL)
	fmt.Printf("Logging in as %s...\n", cfg.Email)
	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return err
	}

	store := feed.NewStore(client, client.BaseURL(), cfg.PageSize, logger)
	coordinator := feed.NewCoordinator(store, client, logger)

	listener := push.NewListener(cfg.ChannelURL(), client.Token(), store, logger)
	go func() {
		if err := listener.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("push listener exited with error", "error", err)
		}
	}()

	store.LoadStatus(ctx)
	store.LoadPage(ctx, 1)
	render(store)

	fmt.Println(`commands: next, prev, reload, view <id>, new <title> | <content> [| image], edit <id> <title> | <content> [| image], delete <id>, status <text>, dismiss, quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "quit", "exit":
			return nil
		case "next":
			store.Navigate(ctx, feed.Next)
		case "prev":
			store.Navigate(ctx, feed.Previous)
		case "reload":
			store.LoadPage(ctx, store.Snapshot().Page)
		case "view":
			post, err := client.FetchPost(ctx, strings.TrimSpace(rest))
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			fmt.Printf("%s\nCreated by %s on %s\n%s\n", post.Title, post.Creator, post.CreatedAt, post.Content)
			continue
		case "new":
			coordinator.BeginCreate()
			submit(ctx, coordinator, rest)
		case "edit":
			id, fields, _ := strings.Cut(rest, " ")
			coordinator.BeginEdit(id)
			submit(ctx, coordinator, fields)
		case "delete":
			if err := coordinator.DeletePost(ctx, strings.TrimSpace(rest)); err != nil {
				fmt.Printf("! %s\n", store.Notice())
			}
		case "status":
			if err := store.UpdateStatus(ctx, rest); err != nil {
				fmt.Printf("! %s\n", store.Notice())
			}
		case "dismiss":
			store.DismissNotice()
		default:
			fmt.Printf("unknown command %q\n", cmd)
			continue
		}
		render(store)
	}
}

// submit parses "title | content [| image-file]" and runs the pending edit.
func submit(ctx context.Context, coordinator *feed.Coordinator, fields string) {
	parts := strings.Split(fields, "|")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		fmt.Println("title and content are required: <title> | <content> [| image-file]")
		coordinator.Cancel()
		return
	}
	intent := feed.Intent{
		Title:   strings.TrimSpace(parts[0]),
		Content: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		imagePath := strings.TrimSpace(parts[2])
		data, err := os.ReadFile(imagePath)
		if err != nil {
			fmt.Printf("! read image: %v\n", err)
			coordinator.Cancel()
			return
		}
		intent.ImageName = imagePath
		intent.Image = data
	}
	if err := coordinator.Submit(ctx, intent); err != nil {
		fmt.Printf("! %v\n", err)
	}
}

func render(store *feed.Store) {
	snap := store.Snapshot()
	if snap.Notice != "" {
		fmt.Printf("! %s\n", snap.Notice)
	}
	if snap.Status != "" {
		fmt.Printf("status: %s\n", snap.Status)
	}
	if snap.Loading {
		fmt.Println("loading...")
		return
	}
	if len(snap.Posts) == 0 {
		fmt.Println("No posts found.")
		return
	}
	fmt.Printf("page %d/%d (%d posts total)\n", snap.Page, snap.LastPage, snap.TotalPosts)
	for _, p := range snap.Posts {
		fmt.Printf("  [%s] %s (by %s on %s)\n", p.ID, p.Title, p.Creator, p.CreatedAt)
	}
}
