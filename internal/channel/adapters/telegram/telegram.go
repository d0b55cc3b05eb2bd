package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/common"
)

// Type is the registry key of the Telegram adapter.
const Type = channel.Telegram

const (
	telegramMaxMessageLength = 4096
	secretTokenHeader        = "X-Telegram-Bot-Api-Secret-Token"
)

// TelegramAdapter parses Bot API webhook updates and sends plain-text
// notifications through the bot.
type TelegramAdapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI // keyed by bot token
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

var getOrCreateBotForTest func(a *TelegramAdapter, token string) (*tgbotapi.BotAPI, error)

func (a *TelegramAdapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	if getOrCreateBotForTest != nil {
		return getOrCreateBotForTest(a, token)
	}
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           Type,
		DisplayName:    "Telegram",
		Verification:   channel.VerificationNone,
		ProvidesPhone:  true,
		CredentialKeys: []string{"bot_token", "secret_token"},
	}
}

// Parse decodes one Bot API update. Updates without a user message
// (edits, callbacks, channel posts) yield no messages.
func (a *TelegramAdapter) Parse(payload []byte) ([]channel.InboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, channel.Malformed("decode telegram update: %v", err)
	}
	if update.UpdateID <= 0 {
		return nil, channel.Malformed("telegram update_id is required")
	}
	msg := update.Message
	if msg == nil {
		return nil, nil
	}
	externalID, displayName, attrs := resolveTelegramSender(msg)
	if externalID == "" {
		a.logger.Debug("skip message without sender", slog.Int("update_id", update.UpdateID))
		return nil, nil
	}
	text := channel.FirstNonEmpty(msg.Text, msg.Caption)
	attachments := a.collectTelegramAttachments(msg)
	a.logger.Debug("telegram message parsed",
		slog.Int("update_id", update.UpdateID),
		slog.String("external_user_id", externalID),
		slog.String("text", common.SummarizeText(text)),
		slog.Int("attachments", len(attachments)),
	)
	return []channel.InboundMessage{{
		Channel:           Type,
		ExternalMessageID: strconv.Itoa(update.UpdateID),
		Sender: channel.Identity{
			SubjectID:   externalID,
			Username:    attrs["username"],
			Phone:       resolveTelegramPhone(msg),
			DisplayName: displayName,
			Attributes:  attrs,
		},
		Text:        text,
		Attachments: attachments,
	}}, nil
}

// VerifySignature compares the secret token header set via setWebhook with
// credentials.secret_token.
func (a *TelegramAdapter) VerifySignature(header http.Header, _ []byte, credentials map[string]any) error {
	secret := channel.ReadString(credentials, "secret_token", "secretToken")
	if secret == "" {
		return nil
	}
	if !common.SecretEqual(strings.TrimSpace(header.Get(secretTokenHeader)), secret) {
		return channel.ErrInvalidSignature
	}
	return nil
}

// SendText delivers text to a chat id or @channel using credentials.bot_token.
func (a *TelegramAdapter) SendText(ctx context.Context, credentials map[string]any, target, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := channel.ReadString(credentials, "bot_token", "botToken")
	if token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("telegram target is required")
	}
	bot, err := a.getOrCreateBot(token)
	if err != nil {
		return err
	}
	return sendTelegramText(bot, target, text)
}

func resolveTelegramSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.Chat != nil {
		attrs["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		userID := strconv.FormatInt(msg.From.ID, 10)
		username := strings.TrimSpace(msg.From.UserName)
		if userID != "" {
			attrs["user_id"] = userID
		}
		if username != "" {
			attrs["username"] = username
		}
		displayName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if displayName == "" {
			displayName = username
		}
		externalID := userID
		if externalID == "" {
			externalID = username
		}
		return externalID, displayName, attrs
	}
	return "", "", attrs
}

// resolveTelegramPhone returns the phone of a contact the sender shared about
// themselves. Contacts of other people are attachments, not sender data.
func resolveTelegramPhone(msg *tgbotapi.Message) string {
	if msg == nil || msg.Contact == nil {
		return ""
	}
	if msg.Contact.UserID != 0 && msg.From != nil && msg.Contact.UserID != msg.From.ID {
		return ""
	}
	return common.NormalizePhone(msg.Contact.PhoneNumber)
}

func (a *TelegramAdapter) collectTelegramAttachments(msg *tgbotapi.Message) []channel.Attachment {
	if msg == nil {
		return nil
	}
	attachments := make([]channel.Attachment, 0, 1)
	if len(msg.Photo) > 0 {
		photo := pickTelegramPhoto(msg.Photo)
		att := buildTelegramAttachment(channel.AttachmentImage, photo.FileID, "", "", int64(photo.FileSize))
		att.Width = photo.Width
		att.Height = photo.Height
		attachments = append(attachments, att)
	}
	if msg.Document != nil {
		att := buildTelegramAttachment(channel.AttachmentFile, msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, int64(msg.Document.FileSize))
		attachments = append(attachments, att)
	}
	if msg.Audio != nil {
		att := buildTelegramAttachment(channel.AttachmentAudio, msg.Audio.FileID, msg.Audio.FileName, msg.Audio.MimeType, int64(msg.Audio.FileSize))
		att.DurationMs = int64(msg.Audio.Duration) * 1000
		attachments = append(attachments, att)
	}
	if msg.Voice != nil {
		att := buildTelegramAttachment(channel.AttachmentVoice, msg.Voice.FileID, "", msg.Voice.MimeType, int64(msg.Voice.FileSize))
		att.DurationMs = int64(msg.Voice.Duration) * 1000
		attachments = append(attachments, att)
	}
	if msg.Video != nil {
		att := buildTelegramAttachment(channel.AttachmentVideo, msg.Video.FileID, msg.Video.FileName, msg.Video.MimeType, int64(msg.Video.FileSize))
		att.Width = msg.Video.Width
		att.Height = msg.Video.Height
		att.DurationMs = int64(msg.Video.Duration) * 1000
		attachments = append(attachments, att)
	}
	if msg.Animation != nil {
		att := buildTelegramAttachment(channel.AttachmentGIF, msg.Animation.FileID, msg.Animation.FileName, msg.Animation.MimeType, int64(msg.Animation.FileSize))
		att.Width = msg.Animation.Width
		att.Height = msg.Animation.Height
		att.DurationMs = int64(msg.Animation.Duration) * 1000
		attachments = append(attachments, att)
	}
	if msg.Sticker != nil {
		att := buildTelegramAttachment(channel.AttachmentSticker, msg.Sticker.FileID, "", "", int64(msg.Sticker.FileSize))
		att.Width = msg.Sticker.Width
		att.Height = msg.Sticker.Height
		attachments = append(attachments, att)
	}
	if msg.Location != nil {
		attachments = append(attachments, channel.Attachment{
			Type: channel.AttachmentLocation,
			Metadata: map[string]any{
				"latitude":  msg.Location.Latitude,
				"longitude": msg.Location.Longitude,
			},
		})
	}
	if msg.Contact != nil {
		attachments = append(attachments, channel.Attachment{
			Type: channel.AttachmentContact,
			Name: strings.TrimSpace(msg.Contact.FirstName + " " + msg.Contact.LastName),
			Metadata: map[string]any{
				"phone": common.NormalizePhone(msg.Contact.PhoneNumber),
			},
		})
	}
	caption := strings.TrimSpace(msg.Caption)
	if caption != "" {
		for i := range attachments {
			attachments[i].Caption = caption
		}
	}
	return attachments
}

func buildTelegramAttachment(attType channel.AttachmentType, fileID, name, mime string, size int64) channel.Attachment {
	att := channel.Attachment{
		Type:        attType,
		PlatformKey: strings.TrimSpace(fileID),
		Name:        strings.TrimSpace(name),
		Mime:        strings.TrimSpace(mime),
		Size:        size,
	}
	if fileID != "" {
		att.Metadata = map[string]any{"file_id": fileID}
	}
	return att
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func sendTelegramText(bot *tgbotapi.BotAPI, target string, text string) error {
	text = truncateTelegramText(strings.ToValidUTF8(text, ""))
	if strings.HasPrefix(target, "@") {
		_, err := bot.Send(tgbotapi.NewMessageToChannel(target, text))
		return err
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be @username or chat_id")
	}
	_, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// truncateTelegramText truncates text to telegramMaxMessageLength on a valid
// UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	if len(text) <= telegramMaxMessageLength {
		return text
	}
	cut := telegramMaxMessageLength - len("...")
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
