package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/client"
	"github.com/mcdev12/maninthemiddle/go/internal/game/config"
	"github.com/mcdev12/maninthemiddle/go/internal/game/relay"
	"github.com/mcdev12/maninthemiddle/go/internal/game/statehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	name       string
	room       string
	create     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "trivia",
	Short: "Headless client for the social-deduction trivia game",
	Long: `Connects to a game server and plays one session from the terminal.

Type /help once connected for the list of commands. Plain lines are chat.

  trivia --name alice --room 42
  trivia --name alice --create`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "trivia.yaml", "Path to the YAML config file")
	rootCmd.Flags().StringVar(&serverURL, "server", "", "Game server URL, overrides the config file")
	rootCmd.Flags().StringVar(&name, "name", "", "Display name")
	rootCmd.Flags().StringVar(&room, "room", "", "Room to join on start")
	rootCmd.Flags().BoolVar(&create, "create", false, "Create a new room on start")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}

	setupLogging(cfg.Log.Level)

	dialer, err := channel.NewWebSocketDialer(cfg.Server.URL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	opts := []client.Option{client.WithChangeHandler(newPrinter(cmd.OutOrStdout()))}

	if cfg.Relay.Enabled {
		publisher, closeRelay, err := setupRelay(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRelay()
		opts = append(opts, client.WithObserver(publisher))

		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
	}

	c := client.New(cfg, dialer, opts...)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("session loop failed")
		}
	}()

	if cfg.StateServer.Enabled {
		server := statehttp.NewServer(cfg.StateServer.Addr, c)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("state server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("state server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("state server shutdown failed")
			}
		}()
	}

	log.Info().Str("server", cfg.Server.URL).Msg("starting trivia client")

	if err := startSession(ctx, c); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "! %v\n", err)
	}

	readCommands(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())

	leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Leave(leaveCtx); err != nil && !errors.Is(err, client.ErrStopped) {
		log.Warn().Err(err).Msg("leave failed")
	}
	cancelRun()
	stop()
	wg.Wait()

	log.Info().Msg("trivia client shutdown complete")
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func setupRelay(ctx context.Context, cfg *config.Config) (*relay.Publisher, func(), error) {
	jsCfg := relay.DefaultJetStreamConfig()
	jsCfg.URL = cfg.Relay.URL
	jsCfg.StreamName = cfg.Relay.Stream
	jsCfg.SubjectPrefix = cfg.Relay.SubjectPrefix

	sink, err := relay.NewJetStreamSink(ctx, jsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create session relay: %w", err)
	}
	closeSink := func() {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("close session relay")
		}
	}
	return relay.NewPublisher(sink, 0), closeSink, nil
}

func startSession(ctx context.Context, c *client.Client) error {
	switch {
	case name == "":
		return nil
	case create:
		return c.CreateRoom(ctx, name)
	case room != "":
		return c.JoinRoom(ctx, name, room)
	}
	return nil
}

func readCommands(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			cmd, err := parseLine(line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			err = execute(ctx, c, cmd, out)
			switch {
			case err == nil:
			case errors.Is(err, errQuit), errors.Is(err, client.ErrStopped):
				return
			case userError(err):
				fmt.Fprintf(out, "! %v\n", err)
			default:
				log.Error().Err(err).Msg("command failed")
			}
		}
	}
}
