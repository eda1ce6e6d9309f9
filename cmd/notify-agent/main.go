// Command notify-agent keeps a notification session open against a server
// and logs everything the session would show to a user.
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/HSouheill/barrim_notifications/client"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	server := flag.String("server", envOr("NOTIFY_SERVER", "http://localhost:8080"), "server base URL")
	token := flag.String("token", os.Getenv("NOTIFY_TOKEN"), "session token (JWT)")
	markAll := flag.Bool("mark-all-read", false, "mark every notification read and exit")
	flag.Parse()

	if *token == "" {
		log.Fatal("a session token is required (-token or NOTIFY_TOKEN)")
	}

	wsURL, err := pushURL(*server)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	logger := log.New(os.Stdout, "notify-agent ", log.LstdFlags)
	api := client.NewAPIClient(strings.TrimRight(*server, "/"), *token)
	agent := client.New(client.Config{
		URL:       wsURL,
		Token:     *token,
		API:       api,
		Presenter: client.LogPresenter{Logger: logger},
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *markAll {
		if err := agent.MarkAllAsRead(ctx); err != nil {
			log.Fatalf("Mark all read failed: %v", err)
		}
		return
	}

	if err := agent.Refresh(ctx); err != nil {
		logger.Printf("Initial load failed: %v", err)
	}
	st := agent.State()
	logger.Printf("%d unread, %d recent notifications", st.UnreadCount, len(st.Notifications))

	if err := agent.Connect(ctx); err != nil {
		logger.Printf("Connect failed, retrying in background: %v", err)
	}
	<-ctx.Done()
	agent.Disconnect()
}

// pushURL derives the WebSocket endpoint from the server base URL
func pushURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	return u.String(), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
