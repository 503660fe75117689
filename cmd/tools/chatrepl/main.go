package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/logging"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	voiceModel "github.com/zhouzirui/mamacare/backend/internal/model/voice"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
	chatservice "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	"github.com/zhouzirui/mamacare/backend/internal/service/voice"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "env file path")
	profileID := cli.StringP("profile", "p", "care-guide", "assistant profile id")
	catalogPath := cli.StringP("catalog", "c", "", "response catalog yaml (default: embedded)")
	seed := cli.Uint64P("seed", "s", 0, "random seed for reply selection (0 = random)")
	delay := cli.DurationP("delay", "d", chatservice.DefaultResponseDelay, "simulated typing delay")
	voiceDelay := cli.Duration("voice-delay", voice.DefaultTranscriptDelay, "simulated transcription delay")
	logLevel := cli.StringP("log", "l", "warn", "log level")
	cli.Parse()

	_ = godotenv.Load(*envFile)

	logger, err := logging.New(logging.Options{Level: *logLevel})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var cat *catalog.Catalog
	if *catalogPath == "" {
		cat, err = catalog.Default()
	} else {
		cat, err = catalog.Load(*catalogPath)
	}
	if err != nil {
		logger.Fatal("load catalog", zap.Error(err))
	}

	var picker catalog.Picker = catalog.NewRandomPicker()
	if *seed != 0 {
		picker = catalog.NewSeededPicker(*seed)
	}

	ctx := context.Background()
	profiles := profile.NewMemoryStore(profile.Seed())
	svc, err := chatservice.NewService(ctx, chatservice.Options{
		Catalog:       cat,
		Profiles:      profiles,
		Picker:        picker,
		ResponseDelay: *delay,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("chat service", zap.Error(err))
	}
	defer svc.Shutdown()

	session, err := svc.CreateSession(ctx, *profileID)
	if err != nil {
		logger.Fatal("create session", zap.Error(err))
	}

	p, _ := profiles.FindByID(*profileID)
	voiceSvc := voice.NewService(voice.Config{
		Transcript:      cat.VoiceTranscript,
		TranscriptDelay: *voiceDelay,
		AutoSubmit:      true,
	}, scheduler.Real{}, logger)
	defer voiceSvc.Forget(session.ID())

	events, cancel := session.Subscribe(64)
	defer cancel()
	unwatch := voiceSvc.Watch(session, func(state voiceModel.State) {
		fmt.Printf("[voice] %s\n", state.Status)
	})
	defer unwatch()

	for _, msg := range session.Messages() {
		printMessage(os.Stdout, msg)
	}
	fmt.Println("commands: /voice  /stop  /quit")

	go func() {
		for ev := range events {
			switch ev.Kind {
			case chatservice.EventMessage:
				if ev.Message.Sender == chat.SenderAssistant {
					printMessage(os.Stdout, *ev.Message)
				}
			case chatservice.EventTyping:
				if ev.Typing {
					fmt.Println("... assistant is typing")
				}
			case chatservice.EventInput:
				if ev.Input != "" {
					fmt.Printf("[input] %s\n", ev.Input)
				}
			case chatservice.EventAIInfo:
				fmt.Println("[ai info unlocked]")
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "/quit":
			return
		case "/voice":
			auto := p.AutoSubmit
			voiceSvc.Start(session, &auto)
			continue
		case "/stop":
			_, _ = voiceSvc.Stop(session.ID())
			continue
		}
		if !session.Submit(line) {
			fmt.Println("(empty message ignored)")
		}
	}
	// let the last reply land before exiting on EOF
	time.Sleep(*delay + 100*time.Millisecond)
}

func printMessage(w io.Writer, msg chat.Message) {
	who := "you"
	if msg.Sender == chat.SenderAssistant {
		who = "assistant"
	}
	fmt.Fprintf(w, "#%d %s: %s\n", msg.ID, who, msg.Text)
	for _, att := range msg.Attachments {
		fmt.Fprintf(w, "    [%s] %s\n", att.Type, describe(att))
	}
}

func describe(att chat.Attachment) string {
	switch data := att.Data.(type) {
	case chat.VideoList:
		titles := make([]string, 0, len(data))
		for _, v := range data {
			titles = append(titles, v.Title)
		}
		return strings.Join(titles, "; ")
	case chat.ArticleList:
		titles := make([]string, 0, len(data))
		for _, a := range data {
			titles = append(titles, a.Title)
		}
		return strings.Join(titles, "; ")
	case chat.GrowthSeries:
		return fmt.Sprintf("%d points, %dth percentile", len(data.Months), data.Percentile)
	case chat.QRCode:
		return data.Label + " (" + data.Value + ")"
	case chat.AIInfo:
		return "about this assistant"
	default:
		return ""
	}
}
