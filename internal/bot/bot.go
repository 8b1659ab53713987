package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"webot/internal/config"
	"webot/internal/engine"
	"webot/internal/extract"
	"webot/internal/logging"
	"webot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const renewSettleWait = 60 * time.Second

var serviceNumberRe = regexp.MustCompile(`^\d{6,15}$`)

// Bot is the Telegram front end. Every portal-touching command runs in
// its own goroutine so the update loop never blocks on the browser.
type Bot struct {
	api     *tgbotapi.BotAPI
	eng     *engine.Engine
	st      *store.Store
	cfg     config.TelegramConfig
	limiter *RateLimiter
	cache   *snapshotCache

	mu   sync.Mutex
	link map[int64]*linkState

	wg sync.WaitGroup
}

// linkState tracks the two-step /link conversation.
type linkState struct {
	stage         string // "service" or "password"
	serviceNumber string
}

// New connects to the Telegram API, retrying a few times so a flaky
// network at boot does not kill the process.
func New(cfg config.TelegramConfig, eng *engine.Engine, st *store.Store) (*Bot, error) {
	attempts := cfg.LaunchMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	retryWait := time.Duration(cfg.LaunchRetryMs) * time.Millisecond
	if retryWait <= 0 {
		retryWait = 15 * time.Second
	}

	var api *tgbotapi.BotAPI
	var err error
	for i := 1; i <= attempts; i++ {
		api, err = tgbotapi.NewBotAPI(cfg.Token)
		if err == nil {
			break
		}
		logging.BotWarn("telegram connect attempt %d/%d failed: %v", i, attempts, err)
		if i < attempts {
			time.Sleep(retryWait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = cfg.Debug

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 10
	}
	return &Bot{
		api:     api,
		eng:     eng,
		st:      st,
		cfg:     cfg,
		limiter: NewRateLimiter(limit, time.Minute),
		cache:   newSnapshotCache(defaultSnapshotTTL),
		link:    make(map[int64]*linkState),
	}, nil
}

// Self returns the bot's own username.
func (b *Bot) Self() string {
	return b.api.Self.UserName
}

// Run blocks consuming updates until ctx is cancelled, then waits for
// in-flight command goroutines to finish.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	logging.Bot("update loop started as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.limiter.Stop()
			logging.Bot("update loop stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				b.wg.Wait()
				b.limiter.Stop()
				return
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil || upd.Message.Chat == nil {
		return
	}
	msg := upd.Message
	chatID := msg.Chat.ID

	if ok, retry := b.limiter.Allow(chatID); !ok {
		b.send(chatID, fmt.Sprintf("🛑 استنى %d ثانية وجرب تاني.", int(retry.Seconds())+1))
		return
	}

	// A pending /link conversation swallows plain text.
	if !msg.IsCommand() {
		if b.continueLink(ctx, msg) {
			return
		}
	}

	switch command(msg) {
	case "start":
		b.handleStart(chatID)
	case "link":
		b.beginLink(chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "today":
		b.handleToday(chatID)
	case "risk":
		b.handleRisk(chatID)
	case "alerts":
		b.handleAlerts(chatID)
	case "alerts_on":
		b.setAlerts(chatID, true)
	case "alerts_off":
		b.setAlerts(chatID, false)
	case "renew":
		b.handleRenew(ctx, chatID)
	case "logout":
		b.handleLogout(ctx, chatID)
	case "diag":
		b.handleDiag(chatID)
	default:
		b.send(chatID, "مش فاهم الأمر ده. استخدم الأزرار تحت 👇")
	}
}

// command maps both slash commands and reply-keyboard button presses to
// one command name.
func command(msg *tgbotapi.Message) string {
	if msg.IsCommand() {
		return msg.Command()
	}
	switch strings.TrimSpace(msg.Text) {
	case "📊 Status":
		return "status"
	case "📅 Today":
		return "today"
	case "📈 Risk":
		return "risk"
	case "🔔 Alerts":
		return "alerts"
	case "🔗 Link Account":
		return "link"
	case "♻️ Renew":
		return "renew"
	case "🚪 Logout":
		return "logout"
	}
	return ""
}

func (b *Bot) handleStart(chatID int64) {
	text := strings.Join([]string{
		"أهلاً 👋 أنا بوت متابعة النت الأرضي من WE.",
		"",
		"اربط حسابك الأول بـ 🔗 Link Account وبعدها تقدر تشوف استهلاكك في أي وقت.",
	}, "\n")
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = MainKeyboard()
	b.sendMsg(msg)
}

func (b *Bot) beginLink(chatID int64) {
	b.mu.Lock()
	b.link[chatID] = &linkState{stage: "service"}
	b.mu.Unlock()
	b.send(chatID, "ابعتلي رقم الخدمة (أرقام بس، من غير مسافات).")
}

// continueLink consumes the next message of an active link conversation.
// Returns false when the chat is not mid-link.
func (b *Bot) continueLink(ctx context.Context, msg *tgbotapi.Message) bool {
	chatID := msg.Chat.ID
	b.mu.Lock()
	ls, active := b.link[chatID]
	b.mu.Unlock()
	if !active {
		return false
	}
	// Keyboard presses abort the conversation and run normally.
	if command(msg) != "" {
		b.mu.Lock()
		delete(b.link, chatID)
		b.mu.Unlock()
		return false
	}

	text := strings.TrimSpace(msg.Text)
	switch ls.stage {
	case "service":
		if !serviceNumberRe.MatchString(text) {
			b.send(chatID, "رقم الخدمة لازم يكون أرقام بس. جرب تاني.")
			return true
		}
		b.mu.Lock()
		b.link[chatID] = &linkState{stage: "password", serviceNumber: text}
		b.mu.Unlock()
		b.send(chatID, "تمام. دلوقتي ابعتلي الباسورد بتاع my.te.eg.")
	case "password":
		b.mu.Lock()
		delete(b.link, chatID)
		b.mu.Unlock()
		// Scrub the password from the chat history.
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
			logging.BotDebug("could not delete password message in chat %d: %v", chatID, err)
		}
		b.runAsync(func() { b.performLink(ctx, chatID, ls.serviceNumber, text) })
	}
	return true
}

func (b *Bot) performLink(ctx context.Context, chatID int64, serviceNumber, password string) {
	key := chatKey(chatID)
	b.send(chatID, "⏳ بسجل دخولك على my.te.eg... ممكن ياخد دقيقة.")

	if err := b.eng.LoginAndSave(ctx, key, serviceNumber, password); err != nil {
		logging.BotError("link failed for chat %s: %v", key, err)
		b.send(chatID, describeError(err))
		return
	}
	if err := b.st.SaveCredentials(key, serviceNumber, password); err != nil {
		logging.BotWarn("saving credentials for chat %s: %v", key, err)
	}
	if err := b.st.EnsureTracked(key); err != nil {
		logging.BotWarn("tracking chat %s: %v", key, err)
	}
	b.send(chatID, "✅ تم ربط حسابك. بجيب بياناتك دلوقتي...")

	snap, err := fetchWithProgress(ctx, b.eng, key, actionBudget, b.notifier(chatID))
	if err != nil {
		b.send(chatID, describeError(err))
		return
	}
	b.afterFetch(chatID, key, snap)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	key := chatKey(chatID)
	if snap, ok := b.cache.Get(chatID); ok {
		b.sendStatus(chatID, key, snap)
		return
	}
	b.send(chatID, "⏳ ثواني، بجيب بياناتك من الموقع...")
	b.runAsync(func() {
		snap, err := fetchWithProgress(ctx, b.eng, key, statusBudget, b.notifier(chatID))
		if err != nil {
			logging.BotError("status fetch for chat %s: %v", key, err)
			b.send(chatID, describeError(err))
			return
		}
		b.afterFetch(chatID, key, snap)
	})
}

func (b *Bot) handleToday(chatID int64) {
	key := chatKey(chatID)
	today, err := b.st.TodayUsageRobust(key, time.Now())
	if err != nil {
		logging.BotError("today usage for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بقرا البيانات المحفوظة.")
		return
	}
	avg, err := b.st.AvgDailyUsage(key, avgWindowDays)
	if err != nil {
		logging.BotWarn("avg usage for chat %s: %v", key, err)
	}
	b.send(chatID, fmt.Sprintf("📅 استهلاك النهاردة: %s GB\n📈 متوسطك اليومي: %s",
		To2f(today), To2(avg)))
}

func (b *Bot) handleRisk(chatID int64) {
	key := chatKey(chatID)
	settings, err := b.st.GetReminderSettings(key)
	if err != nil {
		logging.BotError("reminder settings for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بقرا الإعدادات.")
		return
	}
	rs, err := BuildRiskSnapshot(b.st, key, settings, time.Now())
	if err != nil {
		logging.BotError("risk snapshot for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بحسب التقرير.")
		return
	}
	b.send(chatID, FormatRisk(rs))
}

func (b *Bot) handleAlerts(chatID int64) {
	key := chatKey(chatID)
	settings, err := b.st.GetReminderSettings(key)
	if err != nil {
		logging.BotError("reminder settings for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بقرا الإعدادات.")
		return
	}
	state := "مقفولة ❌ (/alerts_on عشان تفتحها)"
	if settings.Enabled {
		state = "شغالة ✅ (/alerts_off عشان تقفلها)"
	}
	b.send(chatID, fmt.Sprintf("🔔 التنبيهات: %s", state))
}

func (b *Bot) setAlerts(chatID int64, enabled bool) {
	key := chatKey(chatID)
	settings, err := b.st.GetReminderSettings(key)
	if err != nil {
		logging.BotError("reminder settings for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بحفظ الإعدادات.")
		return
	}
	settings.Enabled = enabled
	if err := b.st.UpsertReminderSettings(key, settings); err != nil {
		logging.BotError("saving reminder settings for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بحفظ الإعدادات.")
		return
	}
	if err := b.st.EnsureTracked(key); err != nil {
		logging.BotWarn("tracking chat %s: %v", key, err)
	}
	if enabled {
		b.send(chatID, "✅ التنبيهات اتفتحت.")
	} else {
		b.send(chatID, "✅ التنبيهات اتقفلت.")
	}
}

func (b *Bot) handleRenew(ctx context.Context, chatID int64) {
	key := chatKey(chatID)
	b.send(chatID, "⏳ ببص على حالة الباقة الأول قبل التجديد...")
	b.runAsync(func() {
		snap, err := fetchWithProgress(ctx, b.eng, key, actionBudget, b.notifier(chatID))
		if err != nil {
			b.send(chatID, describeError(err))
			return
		}
		if snap.CanAfford != nil && !*snap.CanAfford {
			b.send(chatID, fmt.Sprintf(
				"❌ مش هجدد: رصيدك %s EGP والتجديد محتاج %s EGP.",
				To2(snap.BalanceEGP), To2(snap.TotalRenewEGP)))
			return
		}
		if snap.RenewBtnEnabled != nil && !*snap.RenewBtnEnabled {
			b.send(chatID, "❌ زرار التجديد مقفول على الموقع دلوقتي، غالباً الباقة لسه شغالة.")
			return
		}

		if err := b.eng.RenewWithSession(ctx, key); err != nil {
			logging.BotError("renew for chat %s: %v", key, err)
			b.send(chatID, describeError(err))
			return
		}
		b.send(chatID, "♻️ دوسنا على التجديد. مستني الموقع يحدث البيانات...")

		select {
		case <-ctx.Done():
			return
		case <-time.After(renewSettleWait):
		}

		b.cache.Delete(chatID)
		after, err := fetchWithProgress(ctx, b.eng, key, actionBudget, b.notifier(chatID))
		if err != nil {
			b.send(chatID, "اتبعت طلب التجديد بس مقدرتش أتأكد من النتيجة. جرب 📊 Status بعد شوية.")
			return
		}
		b.afterFetch(chatID, key, after)
	})
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	key := chatKey(chatID)
	if err := b.eng.DeleteSession(ctx, key); err != nil {
		logging.BotError("logout for chat %s: %v", key, err)
		b.send(chatID, "حصلت مشكلة وأنا بمسح الجلسة.")
		return
	}
	if err := b.st.DeleteCredentials(key); err != nil {
		logging.BotWarn("deleting credentials for chat %s: %v", key, err)
	}
	b.cache.Delete(chatID)
	b.send(chatID, "🚪 تم تسجيل الخروج ومسح بياناتك من البوت.")
}

func (b *Bot) handleDiag(chatID int64) {
	d := b.eng.SessionDiagnostics(chatKey(chatID))
	lines := []string{
		"🔍 Diagnostics",
		fmt.Sprintf("- session stored: %v", d.HasSession),
		fmt.Sprintf("- last op: %s", orDash(d.LastOpID)),
		fmt.Sprintf("- last error: %s", orDash(d.LastError)),
		fmt.Sprintf("- current url: %s", orDash(d.CurrentURL)),
		fmt.Sprintf("- method: %s", orDash(d.MethodPicked)),
	}
	if d.LastFetchAt != nil {
		lines = append(lines, fmt.Sprintf("- last fetch: %s", d.LastFetchAt.In(cairoLoc()).Format(time.RFC3339)))
	}
	if d.MoreDetailsVisible != nil {
		lines = append(lines, fmt.Sprintf("- more details visible: %v", *d.MoreDetailsVisible))
	}
	b.send(chatID, strings.Join(lines, "\n"))
}

// afterFetch persists the snapshot, refreshes the cache, and sends the
// status message.
func (b *Bot) afterFetch(chatID int64, key string, snap *extract.Snapshot) {
	if err := b.st.SaveSnapshot(key, snap); err != nil {
		logging.BotWarn("saving snapshot for chat %s: %v", key, err)
	}
	if err := b.st.EnsureTracked(key); err != nil {
		logging.BotWarn("tracking chat %s: %v", key, err)
	}
	b.cache.Set(chatID, snap)
	b.sendStatus(chatID, key, snap)
}

func (b *Bot) sendStatus(chatID int64, key string, snap *extract.Snapshot) {
	today, err := b.st.TodayUsageRobust(key, time.Now())
	if err != nil {
		logging.BotWarn("today usage for chat %s: %v", key, err)
	}
	avg, err := b.st.AvgDailyUsage(key, avgWindowDays)
	if err != nil {
		logging.BotWarn("avg usage for chat %s: %v", key, err)
	}
	msg := tgbotapi.NewMessage(chatID, FormatStatus(snap, today, avg))
	msg.ReplyMarkup = MainKeyboard()
	b.sendMsg(msg)
}

func (b *Bot) runAsync(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func (b *Bot) notifier(chatID int64) notify {
	return func(text string) { b.send(chatID, text) }
}

func (b *Bot) send(chatID int64, text string) {
	b.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMsg(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		logging.BotError("sending to chat %d: %v", msg.ChatID, err)
	}
}

// SendTo lets scheduled jobs message a chat identified by its store key.
func (b *Bot) SendTo(key, text string) {
	chatID, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		logging.BotWarn("bad chat key %q: %v", key, err)
		return
	}
	b.send(chatID, text)
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// describeError maps engine errors to the message the user sees.
func describeError(err error) string {
	switch engine.KindOf(err) {
	case engine.KindNoSession:
		return "إنت مش مسجل دخول. اضغط 🔗 Link Account الأول."
	case engine.KindSessionExpired:
		return "جلستك انتهت. اضغط 🔗 Link Account تاني."
	case engine.KindLoginFailed:
		return "❌ تسجيل الدخول فشل. اتأكد من رقم الخدمة والباسورد وجرب تاني."
	case engine.KindNoCredentials, engine.KindAutoReloginFailed:
		return "جلستك وقعت ومقدرتش أجددها تلقائي. اضغط 🔗 Link Account تاني."
	case engine.KindBrowserNotInstalled:
		return "في مشكلة في السيرفر (المتصفح مش متسطب). كلم الأدمن."
	case engine.KindRenewDisabled:
		return "❌ زرار التجديد مقفول على الموقع دلوقتي."
	case engine.KindBrowserClosedRenew:
		return "اتقفل المتصفح أثناء التجديد. اتأكد من حالة الباقة بـ 📊 Status قبل ما تجرب تاني."
	}
	return "حصلت مشكلة مؤقتة مع موقع WE. جرب تاني بعد شوية."
}
