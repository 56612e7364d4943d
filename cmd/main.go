package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/callkit-ai/callkit/pkg/avatar"
	"github.com/callkit-ai/callkit/pkg/call"
	"github.com/callkit-ai/callkit/pkg/localmedia"
	"github.com/callkit-ai/callkit/pkg/netmon"
	"github.com/callkit-ai/callkit/pkg/ringback"
	"github.com/callkit-ai/callkit/pkg/trace"
	"github.com/callkit-ai/callkit/pkg/voice"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	godotenv.Load()

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer trace.Shutdown(ctx)

	media := localmedia.NewManager(localmedia.NewMalgoProvider(), localmedia.DefaultConfig())
	mic, err := media.AcquireMicrophone()
	if err != nil {
		log.Printf("microphone unavailable: %v", err)
	}

	voiceAdapter, err := voice.NewRoomAdapter(voice.RoomConfig{
		SignalingURL: getEnv("VOICE_SIGNALING_URL", "ws://localhost:8080/signal"),
		AgentID:      getEnv("AGENT_ID", "companion-demo"),
		Token:        os.Getenv("VOICE_TOKEN"),
		Capture:      mic,
	})
	if err != nil {
		log.Fatal(err)
	}

	avatarSession, err := avatar.NewSession(avatar.Config{
		ServerURL: getEnv("AVATAR_SERVER_URL", "wss://localhost:8443/avatar"),
		APIKey:    os.Getenv("AVATAR_API_KEY"),
		AvatarID:  getEnv("AVATAR_ID", "companion-demo"),
		VoiceID:   os.Getenv("AVATAR_VOICE_ID"),
	})
	if err != nil {
		log.Fatal(err)
	}

	orchestrator, err := call.NewOrchestrator(call.Config{
		Voice:         voiceAdapter,
		Avatar:        avatarSession,
		Media:         media,
		Ringback:      ringback.NewGenerator(ringback.DefaultConfig(), ringback.NewPlaybackSink()),
		Prober:        netmon.NewHTTPProber(getEnv("PROBE_URL", "https://www.gstatic.com/generate_204"), nil),
		MonitorConfig: netmon.DefaultConfig(),
		WithVideo:     true,
		KickoffText:   os.Getenv("KICKOFF_TEXT"),
		OnStateChange: func(state call.State) {
			log.Printf("call state: %s", state)
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := orchestrator.Start(ctx); err != nil {
		log.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Println("interrupt, ending call")
		orchestrator.EndCall()
	case <-orchestrator.Done():
	}

	snap := orchestrator.Snapshot()
	log.Printf("call ended after %s", snap.Duration.Round(time.Second))
}
