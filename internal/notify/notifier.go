package notify

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"trade_executor/internal/gateway"
	"trade_executor/internal/models"
	"trade_executor/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Controller: пауза приёма решений из чата.
type Controller interface {
	SetPaused(v bool)
}

// Report отправляет результат исполнения. hold/wait без ошибок не шлём: это шум.
func Report(n Notifier, res models.ExecutionResult) {
	if n == nil {
		return
	}
	if res.Success && res.Action.IsPassive() {
		return
	}
	n.Send(FormatResult(res))
}

func FormatResult(res models.ExecutionResult) string {
	var b strings.Builder
	emoji := "✅"
	if !res.Success {
		emoji = "❌"
	}
	fmt.Fprintf(&b, "%s %s %s", emoji, res.Action, res.Symbol)
	if res.Quantity != nil {
		fmt.Fprintf(&b, "\nqty: %s", res.Quantity)
	}
	if res.EntryPrice != nil {
		fmt.Fprintf(&b, "\nentry: %s", res.EntryPrice)
	}
	if res.StopLoss != nil || res.TakeProfit != nil {
		fmt.Fprintf(&b, "\nSL: %s / TP: %s", decStr(res.StopLoss), decStr(res.TakeProfit))
	}
	if len(res.Orders) > 0 {
		fmt.Fprintf(&b, "\norders: %d", len(res.Orders))
	}
	if res.Message != "" {
		fmt.Fprintf(&b, "\n%s", res.Message)
	}
	if res.ErrorKind != "" {
		fmt.Fprintf(&b, " [%s]", res.ErrorKind)
	}
	return b.String()
}

func decStr(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

// sender: часть *tgbot.BotAPI, которая нужна нотифайеру.
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram: пассивный нотифайер + команды /position, /pause, /resume.
type Telegram struct {
	bot    sender
	chatID int64
	reader gateway.PositionReader
	ctrl   Controller
}

func NewTelegram(token string, chatID int64, reader gateway.PositionReader, ctrl Controller) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, reader, ctrl), nil
}

func newTelegram(bot sender, chatID int64, reader gateway.PositionReader, ctrl Controller) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, reader: reader, ctrl: ctrl}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start: long-polling команд из своего чата.
func (t *Telegram) Start(ctx context.Context) {
	if t == nil || t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handle(ctx, upd)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) handle(ctx context.Context, upd tgbot.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || m.Chat.ID != t.chatID || !m.IsCommand() {
		return
	}
	switch m.Command() {
	case "position":
		t.handlePosition(ctx, strings.ToUpper(strings.TrimSpace(m.CommandArguments())))
	case "pause":
		if t.ctrl != nil {
			t.ctrl.SetPaused(true)
			t.Send("⏸ Приём решений приостановлен")
		}
	case "resume":
		if t.ctrl != nil {
			t.ctrl.SetPaused(false)
			t.Send("▶️ Приём решений возобновлён")
		}
	}
}

// /position SYMBOL: позиция с биржи
func (t *Telegram) handlePosition(ctx context.Context, symbol string) {
	if t.reader == nil {
		t.Send("❗️ Шлюз не отдаёт позиции")
		return
	}
	if symbol == "" {
		t.Send("Использование: /position BTCUSDT")
		return
	}
	pos, err := t.reader.Position(ctx, symbol)
	if err != nil {
		t.Sendf("❗️ Ошибка получения позиции: %v", err)
		return
	}
	if pos.IsFlat() {
		t.Sendf("📭 %s: позиции нет", symbol)
		return
	}
	t.Sendf("📊 %s [%s] amt=%s @ %s lev=%dx", symbol, pos.Side(), pos.PositionAmt, pos.EntryPrice, pos.Leverage)
}

// Stdout: заглушка без Telegram, всё уходит в лог.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("notify: %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
