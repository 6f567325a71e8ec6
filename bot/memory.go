package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korjavin/quizpilot/models"
)

const (
	exportFileName = "quizpilot-memory.json"
	maxImportBytes = 20 << 20
)

var downloadClient = &http.Client{Timeout: 60 * time.Second}

// handleListCommand handles /list [search]
func (b *Bot) handleListCommand(message *tgbotapi.Message) {
	entries, err := b.db.List(message.CommandArguments())
	if err != nil {
		log.Printf("Error listing memory: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't read the answer memory.")
		return
	}
	if len(entries) == 0 {
		b.setListing(message.Chat.ID, nil)
		b.sendMessage(message.Chat.ID, "No cached answers found.")
		return
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	b.setListing(message.Chat.ID, keys)
	b.sendMessage(message.Chat.ID, formatList(entries, listPageSize))
}

// handleEditCommand handles /edit <n> <answer>
func (b *Bot) handleEditCommand(message *tgbotapi.Message) {
	n, answer, err := parseEditArgs(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /edit <n> <answer>")
		return
	}
	key, ok := b.listingKey(message.Chat.ID, n)
	if !ok {
		b.sendMessage(message.Chat.ID, "No such entry. Run /list first.")
		return
	}

	if err := b.db.Edit(key, answer); err != nil {
		log.Printf("Error editing %q: %v", key, err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't update that answer.")
		return
	}
	log.Printf("Answer for %q edited to %q", key, answer)
	b.sendMessage(message.Chat.ID, fmt.Sprintf("✏️ Updated #%d: %s", n, answer))
}

// handleDeleteCommand asks for confirmation before deleting /list entry n
func (b *Bot) handleDeleteCommand(message *tgbotapi.Message) {
	n, err := parseIndexArg(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /delete <n>")
		return
	}
	key, ok := b.listingKey(message.Chat.ID, n)
	if !ok {
		b.sendMessage(message.Chat.ID, "No such entry. Run /list first.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("Delete cached answer #%d?\n%s", n, truncateText(keyLabel(key), 200)))
	msg.ReplyMarkup = confirmKeyboard(callbackDelete + strconv.Itoa(n))
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending delete confirmation: %v", err)
	}
}

func (b *Bot) confirmDelete(chatID int64, messageID int, n int) {
	key, ok := b.listingKey(chatID, n)
	if !ok {
		b.editMessage(chatID, messageID, "That listing is outdated. Run /list again.")
		return
	}
	if err := b.db.Delete(key); err != nil {
		log.Printf("Error deleting %q: %v", key, err)
		b.editMessage(chatID, messageID, "Sorry, I couldn't delete that answer.")
		return
	}
	log.Printf("Deleted cached answer %q", key)
	b.editMessage(chatID, messageID, fmt.Sprintf("🗑 Deleted #%d", n))
}

// handleClearCommand asks for confirmation before wiping the memory
func (b *Bot) handleClearCommand(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, "Delete ALL cached answers? This cannot be undone.")
	msg.ReplyMarkup = confirmKeyboard(callbackClear)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending clear confirmation: %v", err)
	}
}

// handleExportCommand sends the memory as a JSON document
func (b *Bot) handleExportCommand(message *tgbotapi.Message) {
	records, err := b.db.Export()
	if err != nil {
		log.Printf("Error exporting memory: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't export the answer memory.")
		return
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Printf("Error encoding export: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't export the answer memory.")
		return
	}

	doc := tgbotapi.NewDocument(message.Chat.ID, tgbotapi.FileBytes{Name: exportFileName, Bytes: data})
	doc.Caption = fmt.Sprintf("%d cached answers", len(records))
	if _, err := b.api.Send(doc); err != nil {
		log.Printf("Error sending export: %v", err)
	}
}

// handleDocument imports an exported memory file sent after /import or captioned /import
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) {
	pending := b.takePendingImport(message.Chat.ID)
	if !pending && !strings.HasPrefix(strings.TrimSpace(message.Caption), "/"+cmdImport) {
		b.sendMessage(message.Chat.ID, "Use /import before sending a memory file.")
		return
	}

	records, err := b.downloadRecords(ctx, message.Document.FileID)
	if err != nil {
		log.Printf("Error downloading import: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't read that file. It must be a /export JSON file.")
		return
	}

	count, err := b.db.Import(records)
	if err != nil {
		log.Printf("Error importing memory: %v", err)
		b.sendMessage(message.Chat.ID, "Sorry, the import failed. Nothing was changed.")
		return
	}
	log.Printf("Imported %d of %d cached answers", count, len(records))
	b.setListing(message.Chat.ID, nil)
	b.sendMessage(message.Chat.ID, fmt.Sprintf("📥 Imported %d cached answers", count))
}

func (b *Bot) downloadRecords(ctx context.Context, fileID string) (map[string]models.AnswerRecord, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	return decodeRecords(io.LimitReader(resp.Body, maxImportBytes))
}

// decodeRecords parses an export file
func decodeRecords(r io.Reader) (map[string]models.AnswerRecord, error) {
	var records map[string]models.AnswerRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode memory file: %w", err)
	}
	if records == nil {
		return nil, fmt.Errorf("memory file is empty")
	}
	return records, nil
}

func confirmKeyboard(yesData string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes", yesData),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", callbackCancel),
		),
	)
}
