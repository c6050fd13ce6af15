package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clarabot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid replying to self
}

type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and begins listening for events.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	s.bus = bus

	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)
	s.client = api

	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnOutbound("slack", func(sendCtx context.Context, msg domain.OutboundMessage) error {
		if msg.Text == "" {
			return nil
		}
		return s.sendMessage(sendCtx, msg.ConversationID, msg.Text)
	})

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error { return nil }

func (s *Slack) Send(ctx context.Context, conversationID string, text string) error {
	return s.sendMessage(ctx, conversationID, text)
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	switch event.Type {
	case slackevents.CallbackEvent:
		innerEvent := event.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// Ignore bot's own messages and message_changed subtypes.
			if ev.User == s.botUID || ev.User == "" {
				return
			}
			if ev.SubType != "" {
				return
			}

			s.logger.Info("slack message received",
				"user", ev.User,
				"channel", ev.Channel,
				"text_len", len(ev.Text),
			)

			s.bus.Publish(domain.InboundMessage{
				Channel:        "slack",
				ConversationID: ev.Channel,
				SenderID:       ev.User,
				Text:           ev.Text,
				Timestamp:      time.Now(),
			})

		case *slackevents.AppMentionEvent:
			s.logger.Info("slack mention received",
				"user", ev.User,
				"channel", ev.Channel,
			)

			// Strip the mention prefix.
			text := ev.Text
			if idx := strings.Index(text, ">"); idx >= 0 {
				text = strings.TrimSpace(text[idx+1:])
			}

			s.bus.Publish(domain.InboundMessage{
				Channel:        "slack",
				ConversationID: ev.Channel,
				SenderID:       ev.User,
				Text:           text,
				Timestamp:      time.Now(),
			})
		}
	}
}

func (s *Slack) sendMessage(ctx context.Context, channelID, text string) error {
	chunks := splitMessage(text, slackMaxMsgLen)
	for _, chunk := range chunks {
		_, _, err := s.client.PostMessageContext(
			ctx,
			channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionAsUser(true),
		)
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}
