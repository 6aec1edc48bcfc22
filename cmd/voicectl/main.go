// voicectl joins a session on a directory server, publishes a synthetic
// audio stream and subscribes to everything published in the session.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicesync/internal/adapters/wsdir"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/media"
	"github.com/dkeye/voicesync/internal/session"
	"github.com/dkeye/voicesync/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags("voicectl")
	room := fs.String("room", "lobby", "session name to find or create")
	name := fs.String("name", "", "member name")
	publish := fs.Bool("publish", true, "publish a synthetic audio stream")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dir, err := wsdir.Dial(ctx, cfg.SignalURL, wsdir.Options{
		Transport: transport.Options{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("dial directory")
	}
	engine := media.NewEngine()
	client := session.Setup(dir, engine, session.Options{Workers: cfg.Workers})

	var wg sync.WaitGroup
	defer func() {
		client.Dispose()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := dir.Shutdown(closeCtx); err != nil {
			log.Warn().Err(err).Msg("directory shutdown")
		}
		if err := engine.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("engine close")
		}
		wg.Wait()
	}()

	s := client.FindOrCreate(ctx, *room, "")
	if s == nil {
		log.Error().Str("room", *room).Msg("could not open session")
		return
	}
	watch(ctx, s, &wg)

	lm := s.Join(ctx, domain.MemberInit{Name: *name, Type: domain.MemberPerson})
	if lm == nil {
		log.Error().Msg("could not join")
		return
	}
	log.Info().Str("session", string(s.ID())).Str("member", string(lm.ID())).Msg("joined")

	for _, p := range s.Publications() {
		subscribe(ctx, lm, p, &wg)
	}

	if *publish {
		stream, err := media.NewStream("tone-"+string(lm.ID()), domain.ContentAudio)
		if err != nil {
			log.Error().Err(err).Msg("new stream")
			return
		}
		if pub := lm.Publish(ctx, stream, session.PublishOptions{Metadata: "synthetic"}); pub != nil {
			log.Info().Str("publication", string(pub.ID())).Msg("publishing")
			wg.Add(1)
			go func() {
				defer wg.Done()
				tone(ctx, stream)
			}()
		}
	}

	<-ctx.Done()
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	s.Leave(leaveCtx, lm.Member)
}

func watch(ctx context.Context, s *session.Session, wg *sync.WaitGroup) {
	s.OnMemberJoined(func(m *session.Member) {
		log.Info().Str("member", m.Name()).Bool("local", m.IsLocal()).Msg("member joined")
	})
	s.OnMemberLeft(func(m *session.Member) {
		log.Info().Str("member", m.Name()).Msg("member left")
	})
	s.OnStreamPublished(func(p *session.Publication) {
		log.Info().Str("publication", string(p.ID())).Str("content", p.ContentType().String()).Msg("stream published")
		if lm := s.LocalMember(); lm != nil {
			subscribe(ctx, lm, p, wg)
		}
	})
	s.OnStreamUnpublished(func(p *session.Publication) {
		log.Info().Str("publication", string(p.ID())).Msg("stream unpublished")
	})
	s.OnClosed(func() {
		log.Warn().Str("session", string(s.ID())).Msg("session closed")
	})
	s.OnError(func(err error) {
		log.Error().Err(err).Msg("session error")
	})
}

func subscribe(ctx context.Context, lm *session.LocalMember, p *session.Publication, wg *sync.WaitGroup) {
	sub := lm.Subscribe(ctx, p.ID(), session.SubscribeOptions{})
	if sub == nil {
		return
	}
	stream, ok := sub.Stream().(*media.Stream)
	if !ok {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		count(ctx, sub, stream)
	}()
}

// count logs how many packets a subscription receives, every few seconds.
// Media only flows between publications and subscriptions of one process.
func count(ctx context.Context, sub *session.Subscription, s *media.Stream) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	packets := 0
	for {
		readCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		_, err := s.ReadRTP(readCtx)
		cancel()
		switch {
		case err == nil:
			packets++
		case ctx.Err() != nil:
			return
		case errors.Is(err, media.ErrStreamClosed):
			log.Info().Str("subscription", string(sub.ID())).Int("packets", packets).Msg("subscription stream ended")
			return
		}
		select {
		case <-ticker.C:
			log.Info().Str("subscription", string(sub.ID())).Int("packets", packets).Msg("receiving")
		default:
		}
	}
}

// tone writes 20ms opus-sized silence frames until ctx ends.
func tone(ctx context.Context, s *media.Stream) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var seq uint16
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			seq++
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    111,
					SequenceNumber: seq,
					Timestamp:      uint32(seq) * 960,
					SSRC:           0x5eed,
				},
				Payload: []byte{0xf8, 0xff, 0xfe},
			}
			if err := s.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Msg("tone stopped")
				return
			}
		}
	}
}
