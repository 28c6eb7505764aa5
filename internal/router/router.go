// Package router implements the update classifier and command dispatcher
// (SPEC_FULL.md §4.7): it decides whether an update is a command or free-
// form text, resolves the owning plugin, calls the worker-session manager,
// and formats the reply.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cattackle-hq/cattackle-core/internal/accumulator"
	"github.com/cattackle-hq/cattackle-core/internal/errs"
	"github.com/cattackle-hq/cattackle-core/internal/platform"
	"github.com/cattackle-hq/cattackle-core/internal/registry"
)

const genericFailureText = "An unexpected error occurred. Please try again later."

// Executor is the subset of the worker-session manager the router needs.
type Executor interface {
	Execute(ctx context.Context, pluginName, command string, payload map[string]any) (string, error)
}

// ChatLogger is the subset of the chat audit logger the router calls after
// every processed update.
type ChatLogger interface {
	LogMessage(chatID int64, messageType, text string, from *platform.From, command, cattackleName string, responseLength int)
}

// Router wires the registry, the worker-session manager, and the
// accumulator manager into the single Process entrypoint the poller calls.
type Router struct {
	registry   *registry.Registry
	executor   Executor
	accManager *accumulator.Manager
	chatLog    ChatLogger
	log        *slog.Logger
}

// New returns a Router. chatLog may be nil to disable audit logging.
func New(reg *registry.Registry, executor Executor, accManager *accumulator.Manager, chatLog ChatLogger, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{registry: reg, executor: executor, accManager: accManager, chatLog: chatLog, log: log}
}

// Process classifies update and returns the chat id and reply text to send,
// or ok == false if nothing should be sent.
func (r *Router) Process(ctx context.Context, update platform.Update) (chatID int64, reply string, ok bool) {
	if update.Message == nil || update.Message.Text == "" {
		return 0, "", false
	}

	chatID = update.Message.Chat.ID
	text := update.Message.Text

	if !strings.HasPrefix(text, "/") {
		feedback, gotFeedback := r.accManager.ProcessNonCommand(chatID, text)
		r.logChat(chatID, "message", text, update.Message.From, "", "", len(feedback))

		return chatID, feedback, gotFeedback
	}

	reply = r.processCommand(ctx, chatID, text, update.Message.From)

	return chatID, reply, true
}

func (r *Router) processCommand(ctx context.Context, chatID int64, text string, from *platform.From) string {
	rest := text[1:] // drop leading '/'

	token, argText, _ := strings.Cut(rest, " ")

	pluginName, commandName, found := "", token, false
	var manifest *registry.Manifest

	if before, after, hasUnderscore := strings.Cut(token, "_"); hasUnderscore {
		if m, ok := r.registry.FindByPluginAndCommand(before, after); ok {
			manifest, pluginName, commandName, found = m, before, after, true
		} else {
			commandName = after
		}
	}

	if !found {
		if m, ok := r.registry.FindByCommand(commandName); ok {
			manifest, pluginName, found = m, m.Name, true
		}
	}

	if !found {
		r.logChat(chatID, "command", text, from, commandName, "", 0)

		return "Command not found: " + commandName
	}

	params := r.accManager.DrainForCommand(chatID)
	payload := map[string]any{
		"text":               argText,
		"accumulated_params": params,
	}

	reply, err := r.executor.Execute(ctx, pluginName, commandName, payload)
	if err != nil {
		reply = r.renderError(ctx, pluginName, commandName, err)
	}

	r.logChat(chatID, "command", text, from, commandName, manifest.Name, len(reply))

	return reply
}

func (r *Router) renderError(ctx context.Context, plugin, command string, err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindPluginApplicationError {
		return e.Message
	}

	r.log.ErrorContext(ctx, "plugin execution failed", "plugin", plugin, "command", command, "err", err)

	return genericFailureText
}

func (r *Router) logChat(chatID int64, messageType, text string, from *platform.From, command, cattackleName string, responseLength int) {
	if r.chatLog == nil {
		return
	}

	r.chatLog.LogMessage(chatID, messageType, text, from, command, cattackleName, responseLength)
}
