package telegram

import (
	"log/slog"
	"sort"

	"github.com/m3rciful/editbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command binds a slash command to its handler and menu metadata.
// AdminOnly and Hidden commands stay out of the public command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
}

// Registry collects the bot's slash commands for menu publication.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// RegisterCommand adds a new command. Entries without a leading slash,
// handler or description are skipped, as are duplicates.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	if r == nil || name == "" || name[0] != '/' || cmd.Handler == nil || cmd.Description == "" {
		logger.Warn(logger.Background(), "tg", "register.command.skip",
			slog.String("payload", name),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(logger.Background(), "tg", "register.command.duplicate",
			slog.String("payload", name),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns registered commands sorted by name. With visibleOnly
// set, hidden and admin-only commands are filtered out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// InitBotCommands publishes the visible commands to the Telegram menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(logger.Background(), "tg", "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
}
