package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orcabridge/pkg/cdp"
	"orcabridge/pkg/chat"
	"orcabridge/pkg/config"
	"orcabridge/pkg/launcher"
	"orcabridge/pkg/server"
)

func main() {
	opts := parseArgs()

	log, err := buildLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch opts.command {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "chat":
		err = runChat(ctx, cfg, opts, log)
	case "messages":
		err = runMessages(ctx, cfg, log)
	case "status":
		err = runStatus(ctx, cfg, log)
	case "page":
		err = runPage(ctx, cfg, log)
	case "launch":
		err = runLaunch(ctx, cfg, opts, log)
	case "help", "":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", opts.command)
		printHelp()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func loadConfig(opts cliOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.cdpURL != "" {
		cfg.CDP.URL = opts.cdpURL
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.timeoutSec > 0 {
		cfg.Chat.TimeoutSeconds = opts.timeoutSec
	}
	return cfg, nil
}

func newDriver(cfg config.Config, log *zap.Logger) *chat.Driver {
	client := cdp.New(cdp.Options{
		BaseURL:     cfg.CDP.URL,
		Timeout:     cfg.CDP.Timeout(),
		BypassProxy: cfg.CDP.BypassProxy,
	})
	return chat.NewDriver(client, cfg.Chat, chat.WithLogger(log.Named("chat")))
}

func runServe(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	srv := server.New(cfg.Server, newDriver(cfg, log), log.Named("server"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("orcabridge server on http://%s\n", cfg.Server.Addr)
	for _, ep := range server.Endpoints {
		fmt.Printf("  http://%s%s\n", cfg.Server.Addr, ep)
	}

	select {
	case err := <-errCh:
		return err
	case <-srv.Done():
	case <-sig:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runChat(ctx context.Context, cfg config.Config, opts cliOptions, log *zap.Logger) error {
	driver := newDriver(cfg, log)
	if opts.message != "" {
		return chatOnce(ctx, driver, opts.message, opts)
	}

	// No message: interactive loop.
	fmt.Println("interactive chat (exit/quit/q to leave)")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" || line == "q" {
			return nil
		}
		if err := chatOnce(ctx, driver, line, opts); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func chatOnce(ctx context.Context, driver *chat.Driver, message string, opts cliOptions) error {
	var timeout time.Duration
	if opts.timeoutSec > 0 {
		timeout = time.Duration(opts.timeoutSec) * time.Second
	}
	result := driver.Send(ctx, message, chat.SendOptions{
		WaitForReply: !opts.noWait,
		Timeout:      timeout,
	})
	switch result.Outcome {
	case chat.OutcomeSuccess:
		if result.Response != "" {
			fmt.Println(result.Response)
		} else {
			fmt.Println("sent")
		}
		return nil
	case chat.OutcomeTimeout:
		if result.Response != "" {
			fmt.Println(result.Response)
		}
		return fmt.Errorf("%s", result.Reason)
	default:
		return fmt.Errorf("%s", result.Reason)
	}
}

func runMessages(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	msgs, err := newDriver(cfg, log).Messages(ctx)
	if err != nil {
		return err
	}
	for i := range msgs.User {
		fmt.Printf("[user] %s\n\n", msgs.User[i])
		if i < len(msgs.Assistant) {
			fmt.Printf("[assistant] %s\n\n", msgs.Assistant[i])
		}
	}
	for i := len(msgs.User); i < len(msgs.Assistant); i++ {
		fmt.Printf("[assistant] %s\n\n", msgs.Assistant[i])
	}
	return nil
}

func runStatus(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := newDriver(cfg, log).Status(ctx)
	if err != nil {
		return err
	}
	if !st.Connected {
		fmt.Println("not connected: no chat tab found")
		return nil
	}
	fmt.Printf("connected: %s\n%s\n", st.Title, st.URL)
	return nil
}

func runPage(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	text, err := newDriver(cfg, log).Page(ctx)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runLaunch(ctx context.Context, cfg config.Config, opts cliOptions, log *zap.Logger) error {
	startURL := opts.startURL
	if startURL == "" {
		startURL = "https://" + cfg.Chat.BaseURL
	}
	err := launcher.Launch(ctx, launcher.Options{
		Binary: opts.binary,
		Port:   opts.port,
		URL:    startURL,
	}, log)
	if err != nil {
		return err
	}
	fmt.Println("browser ready")
	return nil
}
