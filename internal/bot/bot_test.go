package bot

import (
	"errors"
	"strings"
	"testing"

	"webot/internal/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func slashMessage(text string) *tgbotapi.Message {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return &tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func TestCommandRouting(t *testing.T) {
	cases := []struct {
		msg  *tgbotapi.Message
		want string
	}{
		{slashMessage("/status"), "status"},
		{slashMessage("/alerts_off"), "alerts_off"},
		{&tgbotapi.Message{Text: "📊 Status"}, "status"},
		{&tgbotapi.Message{Text: "📅 Today"}, "today"},
		{&tgbotapi.Message{Text: "📈 Risk"}, "risk"},
		{&tgbotapi.Message{Text: "🔔 Alerts"}, "alerts"},
		{&tgbotapi.Message{Text: "🔗 Link Account"}, "link"},
		{&tgbotapi.Message{Text: "♻️ Renew"}, "renew"},
		{&tgbotapi.Message{Text: "🚪 Logout"}, "logout"},
		{&tgbotapi.Message{Text: "random chatter"}, ""},
	}
	for _, c := range cases {
		if got := command(c.msg); got != c.want {
			t.Fatalf("command(%q) = %q, want %q", c.msg.Text, got, c.want)
		}
	}
}

func TestServiceNumberValidation(t *testing.T) {
	for _, ok := range []string{"0233334444", "123456"} {
		if !serviceNumberRe.MatchString(ok) {
			t.Fatalf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"02 3333", "abc123", "12345", "+20123456789", ""} {
		if serviceNumberRe.MatchString(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestDescribeErrorCoversTaxonomy(t *testing.T) {
	kinds := []engine.Kind{
		engine.KindNoSession, engine.KindSessionExpired, engine.KindLoginFailed,
		engine.KindNoCredentials, engine.KindAutoReloginFailed,
		engine.KindBrowserNotInstalled, engine.KindRenewDisabled,
		engine.KindBrowserClosedRenew,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		msg := describeError(engine.NewError(k, "x"))
		if msg == "" {
			t.Fatalf("empty message for %s", k)
		}
		seen[msg] = true
	}
	// Session-loss kinds may share a message; rejection vs expiry must not.
	if describeError(engine.NewError(engine.KindLoginFailed, "x")) ==
		describeError(engine.NewError(engine.KindSessionExpired, "x")) {
		t.Fatal("credential rejection and session expiry read the same")
	}
	generic := describeError(errors.New("some rod hiccup"))
	if generic == "" || seen[generic] {
		t.Fatalf("generic fallback %q collides with a typed message", generic)
	}
}
