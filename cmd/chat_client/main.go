package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/pkg/client"
	"ad-chat-be/pkg/engagement"
	"ad-chat-be/pkg/stream"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "chat_client",
		Short: "Terminal client for the ad-supported chat API",
	}
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat; Ctrl-C stops the reply being streamed",
		RunE:  runChat,
	}
	historyCmd = &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Print a conversation with its stored ad cards",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	baseURL        string
	token          string
	conversationID string
	flushInterval  time.Duration
	dataStream     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("CHAT_API_URL", "http://localhost:3000"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CHAT_TOKEN"), "Session token; a new anonymous session is created when empty")

	chatCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	chatCmd.Flags().DurationVar(&flushInterval, "flush-interval", envDuration("EVENT_FLUSH_INTERVAL", 2*time.Second), "Engagement event flush interval")
	chatCmd.Flags().BoolVar(&dataStream, "data-stream", false, "Decode the response as a data-stream protocol body")

	rootCmd.AddCommand(chatCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*client.Client, *client.Session, error) {
	if token != "" {
		api := client.New(baseURL, client.WithToken(token))
		session, err := api.CurrentSession(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve session: %w", err)
		}
		session.Token = token
		return api, session, nil
	}
	api := client.New(baseURL)
	session, err := api.CreateSession(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	color.HiBlack("session %s (export CHAT_TOKEN=%s to reuse it)", session.SessionID, session.Token)
	return api, session, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.NewIsolatedLogger("logs/chat_client.log")
	defer log.Sync()

	api, session, err := connect(ctx)
	if err != nil {
		return err
	}

	if conversationID == "" {
		conv, err := api.CreateConversation(ctx, "")
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		conversationID = conv.ID
	}
	color.Cyan("conversation %s", conversationID)
	color.HiBlack("commands: /click, /hover, /dismiss, /quit")

	buffer := engagement.NewBuffer(api, log, engagement.WithFlushInterval(flushInterval))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := buffer.Close(closeCtx); err != nil {
			color.Red("some engagement events were not delivered: %v", err)
		}
	}()

	var (
		printed int
		card    *adCard
	)
	opts := []client.SessionOption{
		client.WithSnapshots(func(s client.Snapshot) {
			if !s.Failed && len(s.DisplayText) > printed {
				fmt.Print(s.DisplayText[printed:])
				printed = len(s.DisplayText)
			}
		}),
	}
	if dataStream {
		opts = append(opts, client.WithDecoder(func() stream.DeltaDecoder { return &stream.DataStreamDecoder{} }))
	}
	chat := client.NewChatSession(api, conversationID, log, opts...)

	input := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgGreen, color.Bold).Print("\nyou> ")
		if !input.Scan() {
			break
		}
		line := strings.TrimSpace(input.Text())

		switch line {
		case "":
			continue
		case "/quit":
			card.teardown(ctx)
			return nil
		case "/click", "/hover", "/dismiss":
			if card == nil {
				color.Yellow("no sponsored card on screen")
				continue
			}
			if card.act(ctx, line) {
				card = nil
			}
			continue
		}

		card.teardown(ctx)
		card = nil
		printed = 0

		snap := sendInterruptible(ctx, chat, line)
		fmt.Println()
		switch {
		case snap.Failed:
			color.Red(snap.DisplayText)
		case snap.Stopped:
			color.Yellow("[stopped]")
		}
		color.HiBlack("[ad mode: %s]", snap.AdMode)

		if snap.ShowSponsoredCard() {
			card = showCard(snap.AdSelection, session.SessionID, buffer)
		}
	}
	card.teardown(ctx)
	return input.Err()
}

// sendInterruptible runs one turn; Ctrl-C stops the turn instead of the program.
func sendInterruptible(ctx context.Context, chat *client.ChatSession, line string) client.Snapshot {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
			chat.Stop()
		case <-done:
		}
	}()

	snap, _ := chat.Send(ctx, line)
	return snap
}

type adCard struct {
	payload *stream.Payload
	tracker *engagement.Tracker
}

func showCard(p *stream.Payload, sessionID string, queue engagement.Queue) *adCard {
	box := color.New(color.FgMagenta)
	box.Println("┌─ Sponsored ─────────────────────────")
	box.Printf("│ %s\n", p.Product.Name)
	box.Printf("│ %s\n", p.Product.Desc)
	box.Printf("│ %s\n", p.Product.URL)
	box.Println("└─────────────────────────────────────")

	tracker := engagement.NewTracker(engagement.AdRef{
		SessionID: sessionID,
		MessageID: p.MessageID,
		AdMode:    p.AdMode,
	}, queue)
	// Printed in full, so the whole card is in view.
	tracker.ObserveVisibility(1)
	return &adCard{payload: p, tracker: tracker}
}

// act applies a card command and reports whether the card is gone.
func (c *adCard) act(ctx context.Context, command string) bool {
	switch command {
	case "/hover":
		c.tracker.PointerEnter()
		time.Sleep(300 * time.Millisecond)
		c.tracker.PointerLeave()
		color.HiBlack("hovered %s", c.payload.Product.Name)
	case "/click":
		c.tracker.PointerEnter()
		c.tracker.Click("A", true)
		c.tracker.PointerLeave()
		color.Blue("open %s", c.payload.Product.URL)
	case "/dismiss":
		c.tracker.Dismiss(ctx)
		color.HiBlack("card dismissed")
		return true
	}
	return false
}

func (c *adCard) teardown(ctx context.Context) {
	if c != nil {
		c.tracker.Teardown(ctx)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	api, _, err := connect(cmd.Context())
	if err != nil {
		return err
	}

	messages, err := api.ListMessages(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	for _, m := range messages {
		if m.Role == "user" {
			color.Green("you> %s", m.Content)
			continue
		}
		fmt.Println(m.Content)
		if m.AdData.Displayed() {
			color.Magenta("  [sponsored] %s - %s", m.AdData.Product.Name, m.AdData.Product.URL)
		}
		if m.AdMode != "" {
			color.HiBlack("  [ad mode: %s]", m.AdMode)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
