// AngelaMos | 2026
// templates.go

package notification

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/carterperez-dev/legalquota/internal/outbox"
)

// Template describes how one lifecycle event reads in the app and by email.
// A template without InApp text is email only and the reverse.
type Template struct {
	ID         string
	Title      string
	InApp      string
	Subject    string
	Email      string
	ButtonText string
	ButtonPath string
}

var templates = map[string]Template{
	string(outbox.KindTierChanged): {
		ID:         string(outbox.KindTierChanged),
		Title:      "Your plan has changed",
		InApp:      "Your plan is now {{.new_tier}}. Your query budget is {{.limit}} queries.",
		Subject:    "Your plan has changed",
		Email:      "Hello {{.name}}, your plan was changed from {{.old_tier}} to {{.new_tier}}. Your query budget is now {{.limit}}.",
		ButtonText: "Open dashboard",
		ButtonPath: "/dashboard",
	},
	string(outbox.KindDeletionScheduled): {
		ID:         string(outbox.KindDeletionScheduled),
		Title:      "Your account is scheduled for deletion",
		InApp:      "Your account has been inactive and will be deleted on {{.deletion_date}}. Sign in or contact support to keep it.",
		Subject:    "Your account will be deleted on {{.deletion_date}}",
		Email:      "Hello {{.name}}, your account has been inactive for a long time and is scheduled for deletion on {{.deletion_date}}. Sign in before then to keep it.",
		ButtonText: "Keep my account",
		ButtonPath: "/login",
	},
	string(outbox.KindDeletionCancelled): {
		ID:    string(outbox.KindDeletionCancelled),
		Title: "Account deletion cancelled",
		InApp: "The scheduled deletion of your account has been cancelled.",
	},
	string(outbox.KindAccountDeleted): {
		ID:      string(outbox.KindAccountDeleted),
		Subject: "Your account has been deleted",
		Email:   "Hello {{.name}}, your account and all of its data have been deleted. You can register again at any time.",
	},
	string(outbox.KindAccountProvisioned): {
		ID:         string(outbox.KindAccountProvisioned),
		Title:      "Welcome",
		InApp:      "Your account was set up on the {{.tier}} plan.",
		Subject:    "Your account is ready",
		Email:      "Hello {{.name}}, an account was created for you on the {{.tier}} plan.{{if .checkout_url}} Complete your subscription to activate it.{{end}}",
		ButtonText: "Get started",
		ButtonPath: "/dashboard",
	},
}

// Lookup returns the template registered under id.
func Lookup(id string) (Template, error) {
	t, ok := templates[id]
	if !ok {
		return Template{}, fmt.Errorf("template %q: %w", id, outbox.ErrUndeliverable)
	}
	return t, nil
}

// render executes a template string against params. Missing params are an
// error so a malformed event never reaches a user half-filled.
func render(name, text string, params outbox.Params) (string, error) {
	if text == "" {
		return "", nil
	}

	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, outbox.ErrUndeliverable)
	}

	data := map[string]string(params)
	if data == nil {
		data = map[string]string{}
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %v: %w", name, err, outbox.ErrUndeliverable)
	}
	return buf.String(), nil
}
