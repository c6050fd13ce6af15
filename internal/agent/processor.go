package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clarabot/internal/bus"
	"clarabot/internal/domain"
	"clarabot/internal/metrics"
)

// State is one step of the message-processing cycle. Every inbound
// message walks Received → LoggedUser → ContextBuilt → ModelInvoked →
// Replied → LoggedBot → Done; Failed is terminal and reachable from
// any non-terminal state.
type State int

const (
	StateReceived State = iota
	StateLoggedUser
	StateContextBuilt
	StateModelInvoked
	StateReplied
	StateLoggedBot
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateLoggedUser:
		return "logged_user"
	case StateContextBuilt:
		return "context_built"
	case StateModelInvoked:
		return "model_invoked"
	case StateReplied:
		return "replied"
	case StateLoggedBot:
		return "logged_bot"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	defaultStoreTimeout = 10 * time.Second
	defaultModelTimeout = 2 * time.Minute
	defaultSendTimeout  = 30 * time.Second
)

// Processor drives one inbound-message cycle: log the user turn, build
// the context window, invoke the model, deliver the reply, log the
// assistant turn. No in-memory state survives a cycle; everything
// durable lives in the conversation log.
type Processor struct {
	log      domain.ConversationLog
	window   *WindowBuilder
	provider domain.Provider
	outbound domain.MessageBus
	events   *bus.EventBus
	logger   *slog.Logger

	instruction string
	model       string
	maxTokens   int
	temperature float64

	storeTimeout time.Duration
	modelTimeout time.Duration
	sendTimeout  time.Duration

	locks *conversationLocks
}

// ProcessorConfig holds the dependencies and tuning for a Processor.
type ProcessorConfig struct {
	Log         domain.ConversationLog
	Window      *WindowBuilder
	Provider    domain.Provider
	Bus         domain.MessageBus
	Events      *bus.EventBus
	Logger      *slog.Logger
	Instruction string // fixed persona text, constant configuration
	Model       string
	MaxTokens   int
	Temperature float64

	StoreTimeout time.Duration
	ModelTimeout time.Duration
	SendTimeout  time.Duration
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = defaultModelTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Processor{
		log:          cfg.Log,
		window:       cfg.Window,
		provider:     cfg.Provider,
		outbound:     cfg.Bus,
		events:       cfg.Events,
		logger:       cfg.Logger,
		instruction:  cfg.Instruction,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		storeTimeout: cfg.StoreTimeout,
		modelTimeout: cfg.ModelTimeout,
		sendTimeout:  cfg.SendTimeout,
		locks:        newConversationLocks(),
	}
}

// Process runs the full cycle for one eligible inbound message and
// returns the terminal state with the error that caused a failure, if
// any. Instances for the same conversation run strictly sequentially;
// a failure is contained here and never propagates to the gateway.
func (p *Processor) Process(ctx context.Context, msg domain.InboundMessage) (State, error) {
	release := p.locks.acquire(msg.ConversationID)
	defer release()

	metrics.TurnsInFlight.Inc()
	defer metrics.TurnsInFlight.Dec()

	state := StateReceived

	// Log the user turn before anything else. From here on the record
	// is permanent: downstream failures do not roll it back.
	sctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	userTurn, err := p.log.Append(sctx, msg.ConversationID, domain.RoleUser, msg.Text)
	cancel()
	if err != nil {
		return p.fail(msg, state, err)
	}
	state = StateLoggedUser
	p.emit(bus.EventTurnLogged, msg.ConversationID, map[string]any{"role": string(domain.RoleUser), "turn_id": userTurn.ID})

	// Build the ascending context window. The turn just written is
	// dropped by ID so the model does not see the inbound text twice:
	// it arrives once more as the final prompt.
	sctx, cancel = context.WithTimeout(ctx, p.storeTimeout)
	turns, err := p.window.Build(sctx, msg.ConversationID)
	cancel()
	if err != nil {
		return p.fail(msg, state, err)
	}
	history := make([]domain.PromptTurn, 0, len(turns))
	for _, t := range turns {
		if t.ID == userTurn.ID {
			continue
		}
		history = append(history, domain.PromptTurn{Role: t.Role, Text: t.Text})
	}
	state = StateContextBuilt

	mctx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	started := time.Now()
	completion, err := p.provider.Complete(mctx, domain.CompletionRequest{
		SystemInstruction: p.instruction,
		History:           history,
		Prompt:            msg.Text,
		Model:             p.model,
		MaxTokens:         p.maxTokens,
		Temperature:       p.temperature,
	})
	cancel()
	metrics.ModelRequests.Inc()
	metrics.ModelLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		return p.fail(msg, state, fmt.Errorf("%w: %v", domain.ErrModelInvocation, err))
	}
	if completion.Text == "" {
		return p.fail(msg, state, fmt.Errorf("%w: empty completion", domain.ErrModelInvocation))
	}
	state = StateModelInvoked

	if err := p.send(ctx, msg, completion.Text); err != nil {
		// Undelivered replies are never logged: the assistant side of
		// the log reflects what the user actually received.
		return p.fail(msg, state, fmt.Errorf("%w: %v", domain.ErrTransportSend, err))
	}
	state = StateReplied
	p.emit(bus.EventTurnReplied, msg.ConversationID, map[string]any{"chars": len(completion.Text)})

	sctx, cancel = context.WithTimeout(ctx, p.storeTimeout)
	botTurn, err := p.log.Append(sctx, msg.ConversationID, domain.RoleAssistant, completion.Text)
	cancel()
	if err != nil {
		return p.fail(msg, state, err)
	}
	state = StateLoggedBot
	p.emit(bus.EventTurnLogged, msg.ConversationID, map[string]any{"role": string(domain.RoleAssistant), "turn_id": botTurn.ID})

	metrics.TurnsProcessed.Inc()
	p.logger.Info("turn processed",
		"conversation", msg.ConversationID,
		"channel", msg.Channel,
		"window", len(history),
		"latency_ms", completion.LatencyMs,
	)
	return StateDone, nil
}

// send delivers the reply within the configured send timeout. The
// call runs in its own goroutine so a transport that ignores
// cancellation still cannot hold the conversation lock past the
// bound; the orphaned send may finish later, but its bot turn is
// never logged.
func (p *Processor) send(ctx context.Context, msg domain.InboundMessage, text string) error {
	sctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.outbound.SendOutbound(sctx, domain.OutboundMessage{
			Channel:        msg.Channel,
			ConversationID: msg.ConversationID,
			Text:           text,
		})
	}()

	select {
	case err := <-done:
		return err
	case <-sctx.Done():
		return sctx.Err()
	}
}

// fail records a terminal failure. Failed cycles are logged, counted,
// and announced on the event bus; they are never retried and no
// synthetic reply is sent to the user.
func (p *Processor) fail(msg domain.InboundMessage, last State, err error) (State, error) {
	metrics.TurnsFailed.Inc()
	p.logger.Error("turn failed",
		"conversation", msg.ConversationID,
		"channel", msg.Channel,
		"state", last.String(),
		"err", err,
	)
	p.emit(bus.EventTurnFailed, msg.ConversationID, map[string]any{
		"state": last.String(),
		"error": err.Error(),
	})
	return StateFailed, err
}

func (p *Processor) emit(eventType, conversationID string, payload map[string]any) {
	if p.events == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["conversation"] = conversationID
	p.events.Emit(bus.Event{Type: eventType, Source: "processor", Payload: payload})
}
