package chat

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/ashureev/chat-widget/internal/agent"
	"github.com/ashureev/chat-widget/internal/domain"
)

// startPrototype runs the prototype flow in the background. It does not
// block further sends and always ends with a status exchange unless the
// session is closed first.
func (c *Controller) startPrototype(life context.Context, prompt string, p domain.Profile, convID string) {
	c.mu.Lock()
	c.coding++
	c.mu.Unlock()
	c.notify()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		result := c.messages.PrototypeFailed
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Prototype flow panicked", "panic", r, "stack", string(debug.Stack()))
				}
			}()
			result = c.buildPrototype(life, prompt, p)
		}()

		c.mu.Lock()
		c.coding--
		closed := life.Err() != nil
		if !closed {
			c.exchanges = append(c.exchanges, domain.Exchange{Answer: result})
		}
		c.mu.Unlock()
		c.notify()

		if closed {
			c.logger.Info("Prototype flow dropped after close", "conversation_id", convID)
			return
		}
		c.persist(life, convID, p.Email, domain.RoleBot, result)
	}()
}

// buildPrototype calls the generator and resolves the durable prototype ID.
// It returns the success link or the fixed failure text.
func (c *Controller) buildPrototype(ctx context.Context, prompt string, p domain.Profile) string {
	fallbackID := c.newID()

	name := p.Name
	if name == "" {
		name = "User"
	}
	req := agent.PrototypeRequest{
		Prompt: prompt,
		Email:  p.Email,
		Name:   "Prototype by " + name,
	}

	var previewURL, chatID string
	res, err := c.generate(ctx, req)
	switch {
	case err != nil:
		c.logger.Warn("Prototype generation failed, using local link", "email", p.Email, "error", err)
		previewURL = "/prototype/" + fallbackID
	case res != nil:
		previewURL, chatID = res.PreviewURL, res.ChatID
	}

	var prototypeID string
	if chatID != "" {
		found, err := c.deps.Store.LatestPrototypeByChatID(ctx, chatID)
		if err != nil {
			c.logger.Warn("Prototype lookup by chat id failed", "chat_id", chatID, "error", err)
		} else if found != nil {
			prototypeID = found.ID
		}
	}
	if prototypeID == "" {
		found, err := c.deps.Store.LatestPrototypeByPreview(ctx, p.Email, previewURL)
		if err != nil {
			c.logger.Warn("Prototype lookup by preview failed", "email", p.Email, "error", err)
		} else if found != nil {
			prototypeID = found.ID
		}
	}

	if prototypeID == "" || previewURL == "" {
		return c.messages.PrototypeFailed
	}
	c.logger.Info("Prototype ready", "prototype_id", prototypeID, "chat_id", chatID)
	return fmt.Sprintf(c.messages.PrototypeCreated, prototypeID)
}

func (c *Controller) generate(ctx context.Context, req agent.PrototypeRequest) (*agent.PrototypeResult, error) {
	if c.deps.Prototyper == nil {
		return nil, errNoPrototyper
	}
	return c.deps.Prototyper.GeneratePrototype(ctx, req)
}
