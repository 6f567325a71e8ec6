package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korjavin/quizpilot/config"
	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/engine"
)

// Controller is the part of the answering engine the bot can steer
type Controller interface {
	Enabled() bool
	SetEnabled(enabled bool)
	Status() engine.Status
}

// Bot is the Telegram companion: memory management, stats and the on/off switch
type Bot struct {
	api         *tgbotapi.BotAPI
	db          *database.DB
	machine     Controller
	adminChatID int64

	mu            sync.Mutex
	listings      map[int64][]string // chat ID -> cache keys of the last /list, by position
	pendingImport map[int64]bool
}

const (
	cmdStart  = "start"
	cmdHelp   = "help"
	cmdStat   = "stat"
	cmdList   = "list"
	cmdEdit   = "edit"
	cmdDelete = "delete"
	cmdExport = "export"
	cmdImport = "import"
	cmdClear  = "clear"
	cmdOn     = "on"
	cmdOff    = "off"
	cmdStatus = "status"

	callbackDelete = "delete:"
	callbackClear  = "clear"
	callbackCancel = "cancel"
)

// New creates a new bot instance
func New(cfg *config.Config, db *database.DB, machine Controller) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	botAPI.Debug = os.Getenv("DEBUG") == "true"
	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	return &Bot{
		api:           botAPI,
		db:            db,
		machine:       machine,
		adminChatID:   cfg.Bot.AdminChatID,
		listings:      make(map[int64][]string),
		pendingImport: make(map[int64]bool),
	}, nil
}

// Start listens for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	log.Println("Starting bot polling...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in update handler: %v", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		if chatID, ok := callbackChat(update.CallbackQuery); ok && b.authorized(chatID) {
			b.handleCallback(update.CallbackQuery)
		}
	case update.Message != nil:
		if !b.authorized(update.Message.Chat.ID) {
			log.Printf("Ignoring message from unauthorized chat %d", update.Message.Chat.ID)
			b.sendMessage(update.Message.Chat.ID,
				fmt.Sprintf("This bot is private. Your chat ID is %d.", update.Message.Chat.ID))
			return
		}
		b.handleMessage(ctx, update.Message)
	}
}

// callbackChat returns the chat a callback came from; inline-mode callbacks have none
func callbackChat(cb *tgbotapi.CallbackQuery) (int64, bool) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return 0, false
	}
	return cb.Message.Chat.ID, true
}

// authorized admits only the configured admin chat; with none configured nobody gets in
func (b *Bot) authorized(chatID int64) bool {
	return b.adminChatID != 0 && chatID == b.adminChatID
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Document != nil {
		b.handleDocument(ctx, message)
		return
	}

	log.Printf("Received message from %s (chat %d): %s", message.From.UserName, message.Chat.ID, message.Text)

	switch message.Command() {
	case cmdStart, cmdHelp:
		b.handleStartCommand(message)
	case cmdStat:
		b.handleStatCommand(message)
	case cmdList:
		b.handleListCommand(message)
	case cmdEdit:
		b.handleEditCommand(message)
	case cmdDelete:
		b.handleDeleteCommand(message)
	case cmdExport:
		b.handleExportCommand(message)
	case cmdImport:
		b.setPendingImport(message.Chat.ID, true)
		b.sendMessage(message.Chat.ID, "Send the exported JSON file as a document.")
	case cmdClear:
		b.handleClearCommand(message)
	case cmdOn:
		b.handleSwitch(message, true)
	case cmdOff:
		b.handleSwitch(message, false)
	case cmdStatus:
		b.handleStatusCommand(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
}

// handleStartCommand handles the /start command
func (b *Bot) handleStartCommand(message *tgbotapi.Message) {
	welcomeText := `Welcome to QuizPilot!

I keep the answer memory of the quiz auto-answerer and let you steer it.

Commands:
/status - Current question and state
/on, /off - Enable or disable auto-answering
/stat - Memory and accuracy statistics
/list [search] - Cached answers
/edit <n> <answer> - Fix cached answer n from the last /list
/delete <n> - Delete cached answer n from the last /list
/export - Download the answer memory
/import - Merge an exported file into the memory
/clear - Delete all cached answers`

	b.sendMessage(message.Chat.ID, welcomeText)
}

// handleStatCommand handles the /stat command
func (b *Bot) handleStatCommand(message *tgbotapi.Message) {
	stats, err := b.db.Stats()
	if err != nil {
		log.Printf("Error getting memory stats: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't retrieve the statistics. Please try again later.")
		return
	}

	correct, incorrect, err := b.db.GetAttemptStats()
	if err != nil {
		log.Printf("Error getting attempt stats: %v", err)
	}

	var missed []database.MissedQuestion
	if incorrect > 0 {
		missed, err = b.db.GetMostMissedQuestions(3)
		if err != nil {
			log.Printf("Error getting missed questions: %v", err)
		}
	}

	b.sendMessage(message.Chat.ID, formatStats(stats, correct, incorrect, missed))
}

func (b *Bot) handleSwitch(message *tgbotapi.Message, enabled bool) {
	if b.machine != nil {
		b.machine.SetEnabled(enabled)
	}
	if err := b.db.SetAutoAnswerEnabled(enabled); err != nil {
		log.Printf("Error saving auto-answer setting: %v", err)
	}
	if enabled {
		b.sendMessage(message.Chat.ID, "✅ Auto-answering enabled")
	} else {
		b.sendMessage(message.Chat.ID, "⏸ Auto-answering disabled")
	}
}

func (b *Bot) handleStatusCommand(message *tgbotapi.Message) {
	if b.machine == nil {
		b.sendMessage(message.Chat.ID, "The answering engine is not running.")
		return
	}
	b.sendMarkdownMessage(message.Chat.ID, formatStatus(b.machine.Status()))
}

// Status forwards terminal engine failures to the admin chat
func (b *Bot) Status(msg string) {
	if b.adminChatID == 0 || !strings.HasPrefix(msg, "Error") {
		return
	}
	b.sendMessage(b.adminChatID, "⚠️ "+msg)
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	log.Printf("Handling callback from user %s (ID: %d) with data: %s",
		callback.From.UserName, callback.From.ID, callback.Data)

	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID
	b.sendCallbackResponse(callback.ID, "")

	switch {
	case callback.Data == callbackCancel:
		b.editMessage(chatID, messageID, "Cancelled.")
	case callback.Data == callbackClear:
		if err := b.db.Clear(); err != nil {
			log.Printf("Error clearing memory: %v", err)
			b.editMessage(chatID, messageID, "Sorry, I couldn't clear the memory.")
			return
		}
		b.setListing(chatID, nil)
		b.editMessage(chatID, messageID, "🗑 Answer memory cleared.")
	case strings.HasPrefix(callback.Data, callbackDelete):
		n, err := strconv.Atoi(strings.TrimPrefix(callback.Data, callbackDelete))
		if err != nil {
			log.Printf("Invalid delete callback: %s", callback.Data)
			return
		}
		b.confirmDelete(chatID, messageID, n)
	default:
		log.Printf("Invalid callback data: %s", callback.Data)
	}
}

func (b *Bot) setListing(chatID int64, keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if keys == nil {
		delete(b.listings, chatID)
		return
	}
	b.listings[chatID] = keys
}

func (b *Bot) listingKey(chatID int64, n int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := b.listings[chatID]
	if n < 1 || n > len(keys) {
		return "", false
	}
	return keys[n-1], true
}

func (b *Bot) setPendingImport(chatID int64, pending bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pending {
		b.pendingImport[chatID] = true
	} else {
		delete(b.pendingImport, chatID)
	}
}

func (b *Bot) takePendingImport(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pendingImport[chatID]
	delete(b.pendingImport, chatID)
	return pending
}

// sendMessage sends a plain text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// sendMarkdownMessage sends a text message with MarkdownV2 formatting
func (b *Bot) sendMarkdownMessage(chatID int64, text string) {
	escapedText := escapeMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, escapedText)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending markdown message: %v", err)

		log.Printf("Markdown rendering failed, falling back to plain text")
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			log.Printf("Plain text fallback also failed: %v", err)
		}
	}
}

// escapeMarkdown escapes special characters for Telegram's MarkdownV2 format
func escapeMarkdown(text string) string {
	// Characters that need escaping in MarkdownV2: _*[]()~`>#+-=|{}.!
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

	// Don't escape characters within code blocks
	parts := strings.Split(text, "```")
	for i := 0; i < len(parts); i++ {
		if i%2 == 0 {
			for _, char := range specialChars {
				parts[i] = strings.ReplaceAll(parts[i], char, "\\"+char)
			}
		} else {
			parts[i] = strings.ReplaceAll(parts[i], "\\", "\\\\")
			parts[i] = strings.ReplaceAll(parts[i], "`", "\\`")
		}
	}

	return strings.Join(parts, "```")
}

// sendCallbackResponse sends a response to a callback query
func (b *Bot) sendCallbackResponse(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		log.Printf("Error sending callback response: %v", err)
	}
}

// editMessage replaces the text of an earlier message and drops its buttons
func (b *Bot) editMessage(chatID int64, messageID int, newText string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, newText)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}
