// Package chat implements the conversation lifecycle controller behind the
// chat widget: session bootstrap, message exchange, end-of-chat handling,
// satisfaction capture and prototype generation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/chat-widget/internal/agent"
	"github.com/ashureev/chat-widget/internal/directive"
	"github.com/ashureev/chat-widget/internal/domain"
	"github.com/ashureev/chat-widget/internal/identity"
	"github.com/ashureev/chat-widget/internal/profile"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseUnauthenticated      Phase = "unauthenticated"
	PhaseBootstrapping        Phase = "bootstrapping"
	PhaseActive               Phase = "active"
	PhaseAwaitingSatisfaction Phase = "awaiting_satisfaction"
)

var (
	// ErrNotReady is returned by Send before a profile and conversation exist.
	ErrNotReady = fmt.Errorf("chat has no profile or conversation: %w", errdefs.ErrFailedPrecondition)
	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = fmt.Errorf("message is empty: %w", errdefs.ErrInvalidArgument)
	// ErrSendInProgress is returned by Send while another send is outstanding.
	ErrSendInProgress = fmt.Errorf("a message is already being sent: %w", errdefs.ErrConflict)
	// ErrNoSatisfactionPrompt is returned by Rate when no prompt is shown.
	ErrNoSatisfactionPrompt = fmt.Errorf("no satisfaction prompt is shown: %w", errdefs.ErrFailedPrecondition)
	// ErrAlreadyRated is returned by Rate after the prompt accepted a rating.
	ErrAlreadyRated = fmt.Errorf("rating already submitted: %w", errdefs.ErrConflict)

	errNoPrototyper = errors.New("prototype generation is not configured")
)

// farewellPattern matches affirmative or closing replies typed while the
// satisfaction prompt is visible.
var farewellPattern = regexp.MustCompile(`(?i)(sí|si|yes|finalizar|cerrar|terminar)`)

// Store is the persistence the controller needs.
type Store interface {
	LatestConversationByEmail(ctx context.Context, email string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, name, email string) (*domain.Conversation, error)
	SetSatisfaction(ctx context.Context, conversationID string, score int) error
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	LatestPrototypeByChatID(ctx context.Context, chatID string) (*domain.Prototype, error)
	LatestPrototypeByPreview(ctx context.Context, email, previewURL string) (*domain.Prototype, error)
}

// Assistant produces raw replies, directives included.
type Assistant interface {
	Reply(ctx context.Context, prompt, conversationID string) (string, error)
}

// Prototyper generates prototypes from a free-text prompt.
type Prototyper interface {
	GeneratePrototype(ctx context.Context, req agent.PrototypeRequest) (*agent.PrototypeResult, error)
}

// Timings paces visible state changes. Each delay starts only after the
// operation it follows has completed. Zero disables a delay.
type Timings struct {
	TypingDelay         time.Duration
	RevealDelay         time.Duration
	SatisfactionDismiss time.Duration
	SatisfactionReshow  time.Duration
}

// DefaultTimings returns the widget's standard pacing.
func DefaultTimings() Timings {
	return Timings{
		TypingDelay:         500 * time.Millisecond,
		RevealDelay:         1000 * time.Millisecond,
		SatisfactionDismiss: 800 * time.Millisecond,
		SatisfactionReshow:  500 * time.Millisecond,
	}
}

// Messages holds the fixed texts the controller writes into the transcript.
type Messages struct {
	Apology          string
	Farewell         string
	ChatEnded        string
	PrototypeCreated string // formatted with the prototype ID
	PrototypeFailed  string
}

// DefaultMessages returns the widget's standard texts.
func DefaultMessages() Messages {
	return Messages{
		Apology:          "Lo siento, ocurrió un error. Inténtalo de nuevo.",
		Farewell:         "¡Gracias por conversar con nosotros!",
		ChatEnded:        "Chat Ended",
		PrototypeCreated: "✅ Prototype created! Preview it here: /prototype/%s",
		PrototypeFailed:  "❌ Error creating prototype.",
	}
}

// Dependencies wires the controller to its collaborators. Prototyper,
// Profiles, Log and Logger are optional.
type Dependencies struct {
	Store      Store
	Assistant  Assistant
	Prototyper Prototyper
	Profiles   profile.Repository
	Log        agent.ConversationLogger
	Logger     *slog.Logger
}

// Snapshot is an immutable view of the controller.
type Snapshot struct {
	Phase               Phase             `json:"phase"`
	Profile             *domain.Profile   `json:"profile,omitempty"`
	ConversationID      string            `json:"conversation_id,omitempty"`
	Exchanges           []domain.Exchange `json:"exchanges"`
	Open                bool              `json:"open"`
	Input               string            `json:"input"`
	Sending             bool              `json:"sending"`
	Typing              bool              `json:"typing"`
	Coding              bool              `json:"coding"`
	SatisfactionVisible bool              `json:"satisfaction_visible"`
	RatingLocked        bool              `json:"rating_locked"`
}

// Controller owns one widget session. It is safe for concurrent use.
type Controller struct {
	deps     Dependencies
	timings  Timings
	messages Messages
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu                  sync.Mutex
	phase               Phase
	profile             *domain.Profile
	conversationID      string
	exchanges           []domain.Exchange
	open                bool
	input               string
	sending             bool
	typing              bool
	coding              int
	satisfactionVisible bool
	ratingLocked        bool
	promptGen           uint64
	session             uint64
	life                context.Context
	cancelLife          context.CancelFunc
	lastActive          time.Time

	wg sync.WaitGroup

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// NewController creates a controller in the unauthenticated phase.
func NewController(deps Dependencies, timings Timings, messages Messages) *Controller {
	if deps.Log == nil {
		deps.Log = agent.NopConversationLogger()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	life, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:       deps,
		timings:    timings,
		messages:   messages,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		phase:      PhaseUnauthenticated,
		life:       life,
		cancelLife: cancel,
		lastActive: time.Now(),
		subs:       make(map[chan Snapshot]struct{}),
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:               c.phase,
		ConversationID:      c.conversationID,
		Exchanges:           append([]domain.Exchange(nil), c.exchanges...),
		Open:                c.open,
		Input:               c.input,
		Sending:             c.sending,
		Typing:              c.typing,
		Coding:              c.coding > 0,
		SatisfactionVisible: c.satisfactionVisible,
		RatingLocked:        c.ratingLocked,
	}
	if snap.Exchanges == nil {
		snap.Exchanges = []domain.Exchange{}
	}
	if c.profile != nil {
		p := *c.profile
		snap.Profile = &p
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every visible change
// and a function that ends the subscription and closes the channel. Slow
// readers only see the latest snapshot.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.subs) == 0 {
		return
	}

	snap := c.Snapshot()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Open marks the widget visible and resumes the stored profile, if any.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	c.open = true
	c.lastActive = c.now()
	c.mu.Unlock()
	c.notify()

	return c.Resume(ctx)
}

// Close hides the widget, resets the prompt and draft, and cancels every
// in-flight call and pending timer of this session.
func (c *Controller) Close() {
	c.mu.Lock()
	c.open = false
	c.input = ""
	c.satisfactionVisible = false
	c.ratingLocked = false
	c.promptGen++
	if c.phase == PhaseAwaitingSatisfaction {
		c.phase = PhaseActive
	}
	c.cancelLife()
	c.life, c.cancelLife = context.WithCancel(context.Background())
	c.mu.Unlock()
	c.notify()
}

// SetInput replaces the draft input text.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.lastActive = c.now()
	c.mu.Unlock()
	c.notify()
}

// Busy reports whether a send or prototype flow is outstanding or a client
// is subscribed to updates.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	working := c.sending || c.coding > 0
	c.mu.Unlock()
	if working {
		return true
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs) > 0
}

// LastActive returns the time of the last user-driven operation.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Wait blocks until background prototype flows and pending timers finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Resume bootstraps from the stored profile. Without one the controller stays
// unauthenticated. A session that already has a conversation is left alone.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	ready := c.profile != nil && c.conversationID != ""
	c.mu.Unlock()
	if ready || c.deps.Profiles == nil {
		return nil
	}

	p, err := c.deps.Profiles.Load(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !p.Complete() {
		return nil
	}
	return c.bootstrap(ctx, *p)
}

// SignIn decodes an identity-provider credential, stores the profile and
// bootstraps its conversation.
func (c *Controller) SignIn(ctx context.Context, credential string) error {
	p, err := identity.DecodeCredential(credential)
	if err != nil {
		return err
	}

	if c.deps.Profiles != nil {
		if err := c.deps.Profiles.Save(ctx, p); err != nil {
			c.logger.Warn("Failed to persist profile", "email", p.Email, "error", err)
		}
	}
	return c.bootstrap(ctx, p)
}

func (c *Controller) bootstrap(ctx context.Context, p domain.Profile) error {
	c.mu.Lock()
	if c.profile != nil && c.profile.Email == p.Email && c.conversationID != "" {
		c.mu.Unlock()
		return nil
	}
	c.profile = &p
	c.conversationID = ""
	c.exchanges = nil
	c.session++
	c.phase = PhaseBootstrapping
	c.lastActive = c.now()
	c.mu.Unlock()
	c.notify()

	convID, exchanges, err := c.resolveConversation(ctx, p)

	c.mu.Lock()
	c.conversationID = convID
	c.exchanges = exchanges
	c.phase = PhaseActive
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return err
	}
	c.logger.Info("Conversation ready", "email", p.Email, "conversation_id", convID, "exchanges", len(exchanges))
	return nil
}

// resolveConversation returns the most recent conversation for the profile
// with its transcript, or a freshly created one.
func (c *Controller) resolveConversation(ctx context.Context, p domain.Profile) (string, []domain.Exchange, error) {
	conv, err := c.deps.Store.LatestConversationByEmail(ctx, p.Email)
	if err != nil {
		c.logger.Warn("Conversation lookup failed, creating a new one", "email", p.Email, "error", err)
		conv = nil
	}

	if conv != nil {
		msgs, err := c.deps.Store.ListMessages(ctx, conv.ID)
		if err != nil {
			c.logger.Warn("Failed to load conversation history", "conversation_id", conv.ID, "error", err)
			return conv.ID, nil, nil
		}
		return conv.ID, domain.ReconstructExchanges(msgs), nil
	}

	created, err := c.deps.Store.CreateConversation(ctx, p.Name, p.Email)
	if err != nil {
		return "", nil, fmt.Errorf("create conversation: %w", err)
	}
	return created.ID, nil, nil
}

// Send runs one exchange: it records the question, asks the assistant,
// reveals the cleaned answer and triggers any reply directives. Assistant
// failures are absorbed into an apology answer and are not returned.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	switch {
	case c.profile == nil || c.conversationID == "":
		c.mu.Unlock()
		return ErrNotReady
	case strings.TrimSpace(text) == "":
		c.mu.Unlock()
		return ErrEmptyMessage
	case c.sending:
		c.mu.Unlock()
		return ErrSendInProgress
	}

	c.sending = true
	c.lastActive = c.now()
	idx := len(c.exchanges)
	session := c.session
	c.exchanges = append(c.exchanges, domain.Exchange{Question: text})
	c.input = ""
	convID := c.conversationID
	p := *c.profile
	life := c.life

	var reshowGen uint64
	retrigger := c.satisfactionVisible && farewellPattern.MatchString(text)
	if retrigger {
		c.satisfactionVisible = false
		c.ratingLocked = false
		c.promptGen++
		reshowGen = c.promptGen
		c.exchanges = append(c.exchanges, domain.Exchange{Answer: c.messages.Farewell})
	}
	c.mu.Unlock()
	c.notify()

	if retrigger {
		c.after(life, c.timings.SatisfactionReshow, func() {
			c.mu.Lock()
			if c.promptGen != reshowGen {
				c.mu.Unlock()
				return
			}
			c.showSatisfactionLocked()
			c.mu.Unlock()
			c.notify()
		})
	}

	ctx, cancel := bind(ctx, life)
	defer cancel()

	c.persist(ctx, convID, p.Email, domain.RoleUser, text)

	if sleep(ctx, c.timings.TypingDelay) {
		c.mu.Lock()
		c.typing = true
		c.mu.Unlock()
		c.notify()
	}

	raw, err := c.reply(ctx, text, convID)
	if err != nil {
		c.logger.Warn("Assistant call failed", "conversation_id", convID, "error", err)
		c.mu.Lock()
		c.setAnswerLocked(session, idx, c.messages.Apology)
		c.typing = false
		c.sending = false
		c.mu.Unlock()
		c.notify()
		return nil
	}

	res := directive.Parse(raw)
	c.persist(ctx, convID, p.Email, domain.RoleBot, res.Text)

	sleep(ctx, c.timings.RevealDelay)

	var ended string
	c.mu.Lock()
	current := c.setAnswerLocked(session, idx, res.Text)
	c.typing = false
	c.sending = false
	if current && res.Has(directive.EndChat) {
		ended = c.messages.ChatEnded + " · " + c.now().Format("1/2/2006, 3:04:05 PM")
		c.exchanges = append(c.exchanges, domain.Exchange{Answer: ended})
		c.showSatisfactionLocked()
	}
	c.mu.Unlock()
	c.notify()

	if !current {
		c.logger.Info("Reply dropped after session change", "conversation_id", convID)
		return nil
	}
	if res.Has(directive.AddPrototype) {
		c.startPrototype(life, res.Prompt, p, convID)
	}
	if ended != "" {
		c.persist(ctx, convID, p.Email, domain.RoleSystem, ended)
	}
	return nil
}

func (c *Controller) reply(ctx context.Context, prompt, convID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.deps.Assistant.Reply(ctx, prompt, convID)
}

// setAnswerLocked fills the answer of the exchange opened by a send and
// reports whether the send's session is still current. A new sign-in
// replaces the transcript, so answers from an older session are dropped.
// Caller holds c.mu.
func (c *Controller) setAnswerLocked(session uint64, idx int, answer string) bool {
	if c.session != session || idx >= len(c.exchanges) {
		return false
	}
	c.exchanges[idx].Answer = answer
	return true
}

// showSatisfactionLocked activates a fresh rating prompt. Caller holds c.mu.
func (c *Controller) showSatisfactionLocked() {
	c.promptGen++
	c.satisfactionVisible = true
	c.ratingLocked = false
	c.phase = PhaseAwaitingSatisfaction
}

// Rate records a 1–5 satisfaction score for the current prompt. The prompt
// accepts one rating and is dismissed after the configured delay.
func (c *Controller) Rate(ctx context.Context, score int) error {
	if err := domain.ValidateSatisfaction(score); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}

	c.mu.Lock()
	if !c.satisfactionVisible {
		c.mu.Unlock()
		return ErrNoSatisfactionPrompt
	}
	if c.ratingLocked {
		c.mu.Unlock()
		return ErrAlreadyRated
	}
	c.ratingLocked = true
	c.lastActive = c.now()
	convID := c.conversationID
	gen := c.promptGen
	life := c.life
	c.mu.Unlock()
	c.notify()

	ctx, cancel := bind(ctx, life)
	defer cancel()

	if err := c.deps.Store.SetSatisfaction(ctx, convID, score); err != nil {
		c.logger.Warn("Failed to save satisfaction", "conversation_id", convID, "score", score, "error", err)
	} else {
		c.logger.Info("Satisfaction recorded", "conversation_id", convID, "score", score)
	}

	c.after(life, c.timings.SatisfactionDismiss, func() {
		c.mu.Lock()
		if c.promptGen != gen {
			c.mu.Unlock()
			return
		}
		c.satisfactionVisible = false
		c.ratingLocked = false
		if c.phase == PhaseAwaitingSatisfaction {
			c.phase = PhaseActive
		}
		c.mu.Unlock()
		c.notify()
	})
	return nil
}

func (c *Controller) persist(ctx context.Context, convID, email string, role domain.Role, content string) {
	msg := &domain.Message{ConversationID: convID, Role: role, Content: content, CreatedAt: c.now()}
	if err := c.deps.Store.AppendMessage(ctx, msg); err != nil {
		c.logger.Warn("Failed to persist message", "conversation_id", convID, "role", role, "error", err)
	}
	c.deps.Log.Log(agent.ConversationLogEvent{
		Email:          email,
		ConversationID: convID,
		Role:           string(role),
		EventType:      "chat_" + string(role) + "_message",
		ContentRaw:     content,
	})
}

// after runs fn once d has elapsed unless the session life ends first.
func (c *Controller) after(life context.Context, d time.Duration, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if sleep(life, d) {
			fn()
		}
	}()
}

// sleep waits for d and reports whether ctx is still live afterwards.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// bind derives a context that ends with either parent or the session life.
func bind(parent, life context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
