package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep records
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "TRIVIA_SESSIONS",
		SubjectPrefix:   "trivia.session",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// JetStreamSink publishes records to a memory-backed JetStream stream.
// Session state is ephemeral, so nothing here is meant to survive a
// server restart.
type JetStreamSink struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamSink(ctx context.Context, cfg JetStreamConfig) (*JetStreamSink, error) {
	opts := []nats.Option{
		nats.Name("trivia-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &JetStreamSink{nc: nc, js: js, config: cfg}
	if err := s.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return s, nil
}

func (s *JetStreamSink) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        s.config.StreamName,
		Description: "Trivia client session observations",
		Subjects:    []string{fmt.Sprintf("%s.>", s.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.config.MaxAge,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
		Duplicates:  s.config.DuplicateWindow,
	}

	if _, err := s.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().Str("stream", s.config.StreamName).Msg("JetStream stream ready")
	return nil
}

// Publish sends rec on <prefix>.<room>.<kind>.
func (s *JetStreamSink) Publish(ctx context.Context, rec Record) error {
	subject := Subject(s.config.SubjectPrefix, rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ack, err := s.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Record-Kind": []string{string(rec.Kind)},
			"Room-ID":     []string{rec.RoomID},
			"Record-ID":   []string{rec.ID.String()},
		},
	},
		jetstream.WithMsgID(rec.ID.String()),
		jetstream.WithExpectStream(s.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("record_id", rec.ID.String()).
		Uint64("sequence", ack.Sequence).
		Msg("relayed session record")
	return nil
}

func (s *JetStreamSink) Close() error {
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject builds the NATS subject for rec. Records without a room go to
// the "lobbyless" token.
func Subject(prefix string, rec Record) string {
	room := subjectToken.Replace(rec.RoomID)
	if room == "" {
		room = "lobbyless"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, room, rec.Kind)
}
