// Package conversation runs the per-phone chat state machine and sends the replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/localization"
	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/storage"
	"iptv-bot/internal/stories/accounts"
	"iptv-bot/internal/stories/conversations"
	"iptv-bot/internal/stories/customers"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/settings"
)

const lang = localization.DefaultLanguage

// outcome is what a step handler decided. When saved is set the handler already
// persisted next itself.
type outcome struct {
	next    conversations.State
	replies []string
	saved   bool
}

type Engine struct {
	store     Store
	messenger Messenger
	charger   Charger
	settings  Settings
	localizer Localizer
	metrics   Metrics
	logger    *slog.Logger
}

func NewEngine(
	store Store,
	messenger Messenger,
	charger Charger,
	values Settings,
	localizer Localizer,
	metrics Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		messenger: messenger,
		charger:   charger,
		settings:  values,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle processes one inbound message. Calls for the same phone must be serialized
// by the caller.
func (e *Engine) Handle(ctx context.Context, phone, text string) error {
	input := Normalize(text)

	state := conversations.Idle(phone)
	current, err := e.store.GetConversation(ctx, phone)
	switch {
	case errors.Is(err, conversations.ErrCorruptState):
		// The next save overwrites the row, so the phone restarts from the menu.
		e.logger.Warn("Discarding unreadable conversation state", "phone", phone, "error", err)
	case err != nil:
		return e.failTemporarily(ctx, phone, apperrors.Persistence("get conversation", err))
	case current != nil:
		state = *current
	}

	var out outcome
	if IsCancel(input) {
		out = outcome{
			next:    conversations.Idle(phone),
			replies: []string{e.t("menu.cancelled", nil), e.t("menu.main", nil)},
		}
	} else {
		out, err = e.dispatch(ctx, state, input, text)
		if err != nil {
			return e.failTemporarily(ctx, phone, err)
		}
	}

	if !out.saved {
		if err := e.store.SaveConversation(ctx, out.next); err != nil {
			return e.failTemporarily(ctx, phone, apperrors.Persistence("save conversation", err))
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveTransition(state.Addr(), out.next.Addr())
	}
	e.logger.Debug("Conversation transition",
		"phone", phone,
		"from", state.Addr(),
		"to", out.next.Addr())

	return e.send(ctx, phone, out.replies...)
}

func (e *Engine) dispatch(ctx context.Context, state conversations.State, input, raw string) (outcome, error) {
	switch state.Context {
	case conversations.ContextOnboarding:
		return e.handleOnboarding(ctx, state, raw)
	case conversations.ContextPurchase:
		return e.handlePurchase(ctx, state, input)
	case conversations.ContextRenewal:
		return e.handleRenewal(ctx, state, input)
	case conversations.ContextErrorMenu:
		return e.handleErrorMenu(ctx, state, input)
	default:
		return e.handleIdle(ctx, state, input)
	}
}

func (e *Engine) handleIdle(ctx context.Context, state conversations.State, input string) (outcome, error) {
	known, name, err := e.knownCustomer(ctx, state.Phone)
	if err != nil {
		return outcome{}, err
	}
	if !known {
		return e.to(state.Phone, conversations.ContextOnboarding, conversations.StepCollectName, conversations.Empty{},
			e.t("onboarding.ask_name", nil)), nil
	}

	intent := DetectIntent(input)
	switch input {
	case "1":
		intent = IntentPurchase
	case "2":
		intent = IntentRenew
	case "3":
		intent = IntentInquire
	}

	switch intent {
	case IntentPurchase:
		return e.to(state.Phone, conversations.ContextPurchase, conversations.StepChooseUsername, conversations.Empty{},
			e.t("purchase.start", nil)), nil
	case IntentRenew:
		return e.startRenewal(ctx, state)
	case IntentInquire:
		reply, err := e.inquire(ctx, state.Phone)
		if err != nil {
			return outcome{}, err
		}
		return e.stay(state, reply), nil
	case IntentGreeting:
		greeting, err := e.greeting(ctx, name)
		if err != nil {
			return outcome{}, err
		}
		return e.stay(state, greeting), nil
	case IntentHelp:
		return e.stay(state, e.t("menu.main", nil)), nil
	case IntentPrice:
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		return e.stay(state, e.t("info.price", map[string]interface{}{
			"price_per_month": FormatMoney(values.PerMonth),
			"price_per_extra": FormatMoney(values.PerExtraConnection),
		})), nil
	case IntentDevice:
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		return e.stay(state, e.t("info.devices", map[string]interface{}{"access_link": values.AccessLinkURL})), nil
	default:
		return e.errorMenu(state.Phone, e.t("errors.not_understood", nil)), nil
	}
}

func (e *Engine) handleOnboarding(ctx context.Context, state conversations.State, raw string) (outcome, error) {
	name, err := ValidateName(raw)
	if err != nil {
		return e.stay(state, e.t("onboarding.invalid_name", nil)), nil
	}

	greeting, err := e.greeting(ctx, name)
	if err != nil {
		return outcome{}, err
	}

	next := conversations.Idle(state.Phone)
	err = e.store.RunInTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.UpsertCustomer(ctx, customers.Customer{Phone: state.Phone, Name: name}); err != nil {
			return err
		}
		return tx.SaveConversation(ctx, next)
	})
	if err != nil {
		return outcome{}, apperrors.Persistence("save customer", err)
	}

	e.logger.Info("Customer onboarded", "phone", state.Phone)

	return outcome{
		next:    next,
		replies: []string{e.t("onboarding.welcome", map[string]interface{}{"name": name}), greeting},
		saved:   true,
	}, nil
}

func (e *Engine) handlePurchase(ctx context.Context, state conversations.State, input string) (outcome, error) {
	switch s := state.Scratch.(type) {
	case conversations.Empty:
		username, err := e.availableUsername(ctx, input)
		if err != nil {
			return e.userError(state, err)
		}
		return e.to(state.Phone, conversations.ContextPurchase, conversations.StepChooseConnections,
			conversations.PurchaseConnections{Username: username},
			e.t("purchase.ask_connections", map[string]interface{}{"username": username})), nil

	case conversations.PurchaseConnections:
		connections, err := ParseConnections(input)
		if err != nil {
			return e.stay(state, e.t("purchase.invalid_connections", nil)), nil
		}
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		return e.to(state.Phone, conversations.ContextPurchase, conversations.StepChooseDuration,
			conversations.PurchaseDuration{Username: s.Username, Connections: connections},
			e.t("purchase.ask_duration", map[string]interface{}{
				"connections":     connections,
				"price_per_month": FormatMoney(values.PerMonth),
			})), nil

	case conversations.PurchaseDuration:
		months, err := ParseMonths(input)
		if err != nil {
			return e.stay(state, e.t("duration.invalid", nil)), nil
		}
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		price := Price(values.Pricing, s.Connections, months)
		return e.to(state.Phone, conversations.ContextPurchase, conversations.StepConfirm,
			conversations.PurchaseConfirm{Username: s.Username, Connections: s.Connections, Months: months, Price: price},
			e.t("purchase.summary", e.summaryParams(s.Username, s.Connections, months, price))), nil

	case conversations.PurchaseConfirm:
		switch classifyConfirm(input) {
		case answerYes:
			if _, err := e.availableUsername(ctx, s.Username); err != nil {
				var conflict *apperrors.ConflictError
				if errors.As(err, &conflict) {
					return e.to(state.Phone, conversations.ContextPurchase, conversations.StepChooseUsername, conversations.Empty{},
						e.t("purchase.username_taken", map[string]interface{}{"username": s.Username})), nil
				}
				return outcome{}, err
			}
			return e.confirm(ctx, state.Phone, payment.ContextPurchase, s.Username, s.Connections, s.Months)
		case answerNo:
			return e.to(state.Phone, conversations.ContextIdle, conversations.StepMenu, conversations.Empty{},
				e.t("purchase.cancelled", nil), e.t("menu.main", nil)), nil
		default:
			return e.errorMenu(state.Phone, e.t("errors.invalid_answer", nil)), nil
		}

	default:
		return outcome{}, fmt.Errorf("unexpected scratch %T at %s", state.Scratch, state.Addr())
	}
}

func (e *Engine) handleRenewal(ctx context.Context, state conversations.State, input string) (outcome, error) {
	switch s := state.Scratch.(type) {
	case conversations.RenewalAccount:
		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(s.Usernames) {
			return e.stay(state, e.t("renewal.invalid_choice", nil)), nil
		}
		return e.selectRenewal(ctx, state.Phone, s.Usernames[idx-1])

	case conversations.RenewalDuration:
		months, err := ParseMonths(input)
		if err != nil {
			return e.stay(state, e.t("duration.invalid", nil)), nil
		}
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		price := Price(values.Pricing, s.Connections, months)
		return e.to(state.Phone, conversations.ContextRenewal, conversations.StepConfirm,
			conversations.RenewalConfirm{Username: s.Username, Connections: s.Connections, Months: months, Price: price},
			e.t("renewal.summary", e.summaryParams(s.Username, s.Connections, months, price))), nil

	case conversations.RenewalConfirm:
		switch classifyConfirm(input) {
		case answerYes:
			return e.confirm(ctx, state.Phone, payment.ContextRenewal, s.Username, s.Connections, s.Months)
		case answerNo:
			return e.to(state.Phone, conversations.ContextIdle, conversations.StepMenu, conversations.Empty{},
				e.t("purchase.cancelled", nil), e.t("menu.main", nil)), nil
		default:
			return e.errorMenu(state.Phone, e.t("errors.invalid_answer", nil)), nil
		}

	default:
		return outcome{}, fmt.Errorf("unexpected scratch %T at %s", state.Scratch, state.Addr())
	}
}

func (e *Engine) handleErrorMenu(ctx context.Context, state conversations.State, input string) (outcome, error) {
	switch input {
	case "1":
		return e.to(state.Phone, conversations.ContextIdle, conversations.StepMenu, conversations.Empty{},
			e.t("menu.main", nil)), nil
	case "2":
		values, err := e.values(ctx)
		if err != nil {
			return outcome{}, err
		}
		return e.to(state.Phone, conversations.ContextIdle, conversations.StepMenu, conversations.Empty{},
			e.t("error_menu.support", map[string]interface{}{"contact": values.SupportContact})), nil
	default:
		return e.stay(state, e.t("error_menu.invalid", nil)), nil
	}
}

func (e *Engine) startRenewal(ctx context.Context, state conversations.State) (outcome, error) {
	owned, err := e.ownedAccounts(ctx, state.Phone)
	if err != nil {
		return outcome{}, err
	}

	switch len(owned) {
	case 0:
		return e.stay(state, e.t("renewal.no_accounts", nil)), nil
	case 1:
		return e.renewalDuration(ctx, state.Phone, owned[0])
	}

	usernames := make([]string, 0, len(owned))
	options := make([]string, 0, len(owned))
	for i, acc := range owned {
		usernames = append(usernames, acc.Username())
		options = append(options, fmt.Sprintf("*%d* - %s", i+1, acc.Username()))
	}

	return e.to(state.Phone, conversations.ContextRenewal, conversations.StepChooseAccount,
		conversations.RenewalAccount{Usernames: usernames},
		e.t("renewal.choose", map[string]interface{}{
			"count":   len(owned),
			"options": strings.Join(options, "\n"),
		})), nil
}

func (e *Engine) selectRenewal(ctx context.Context, phone, username string) (outcome, error) {
	acc, err := e.store.GetAccount(ctx, accounts.GetCriteria{SubscriberID: &username})
	if err != nil {
		return outcome{}, apperrors.Persistence("get account", err)
	}
	if acc == nil {
		return e.errorMenu(phone, e.t("errors.not_understood", nil)), nil
	}
	return e.renewalDuration(ctx, phone, acc)
}

func (e *Engine) renewalDuration(ctx context.Context, phone string, acc *accounts.Account) (outcome, error) {
	values, err := e.values(ctx)
	if err != nil {
		return outcome{}, err
	}
	connections := max(acc.ConnectionCount, minConnections)
	return e.to(phone, conversations.ContextRenewal, conversations.StepChooseDuration,
		conversations.RenewalDuration{Username: acc.Username(), Connections: connections},
		e.t("renewal.ask_duration", map[string]interface{}{
			"username":        acc.Username(),
			"price_per_month": FormatMoney(values.PerMonth),
		})), nil
}

// confirm requests the charge, then stores the pending payment and the idle state in
// one transaction.
func (e *Engine) confirm(ctx context.Context, phone string, flow payment.Context, username string, connections, months int) (outcome, error) {
	values, err := e.values(ctx)
	if err != nil {
		return outcome{}, err
	}
	amount := Price(values.Pricing, connections, months)

	charge, err := e.charger.CreateCharge(ctx, phone, amount, map[string]string{
		"phone":    phone,
		"username": username,
		"context":  string(flow),
	})
	if err != nil {
		return outcome{}, fmt.Errorf("create charge: %w", err)
	}

	pending := payment.PendingPayment{
		PaymentID: charge.PaymentID,
		Phone:     phone,
		Context:   flow,
		Amount:    amount,
		PayCode:   charge.PayCode,
		Snapshot: payment.Snapshot{
			Username:    username,
			Connections: connections,
			Months:      months,
			PlanLabel:   values.DefaultPlanLabel,
		},
		Status: payment.StatusPending,
	}

	next := conversations.Idle(phone)
	err = e.store.RunInTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.CreatePendingPayment(ctx, pending); err != nil {
			return err
		}
		return tx.SaveConversation(ctx, next)
	})
	if err != nil {
		return outcome{}, apperrors.Persistence("create pending payment", err)
	}

	e.logger.Info("Pending payment created",
		"payment_id", charge.PaymentID,
		"phone", phone,
		"context", flow,
		"username", username,
		"amount", amount)

	return outcome{
		next: next,
		replies: []string{e.t("payment.created", map[string]interface{}{
			"amount":   FormatMoney(amount),
			"pay_code": charge.PayCode,
		})},
		saved: true,
	}, nil
}

func (e *Engine) inquire(ctx context.Context, phone string) (string, error) {
	owned, err := e.ownedAccounts(ctx, phone)
	if err != nil {
		return "", err
	}
	if len(owned) == 0 {
		return e.t("inquire.none", nil), nil
	}

	parts := []string{e.t("inquire.header", nil)}
	for i, acc := range owned {
		parts = append(parts, e.t("inquire.item", map[string]interface{}{
			"index":       i + 1,
			"username":    acc.Username(),
			"connections": acc.ConnectionCount,
			"status":      e.statusLabel(acc.Status),
			"expires_at":  e.formatDate(acc),
			"plan":        acc.PlanLabel,
		}))
	}
	parts = append(parts, e.t("inquire.footer", nil))

	return strings.Join(parts, "\n\n"), nil
}

func (e *Engine) availableUsername(ctx context.Context, raw string) (string, error) {
	username, err := ValidateUsername(raw)
	if err != nil {
		return "", err
	}
	existing, err := e.store.GetAccount(ctx, accounts.GetCriteria{SubscriberID: &username})
	if err != nil {
		return "", apperrors.Persistence("get account", err)
	}
	if existing != nil {
		return "", &apperrors.ConflictError{Field: "username", Value: username}
	}
	return username, nil
}

// userError re-prompts the current step for validation and conflict errors.
func (e *Engine) userError(state conversations.State, err error) (outcome, error) {
	var validation *apperrors.ValidationError
	var conflict *apperrors.ConflictError
	switch {
	case errors.As(err, &validation):
		return e.stay(state, e.t("purchase.invalid_username", nil)), nil
	case errors.As(err, &conflict):
		return e.stay(state, e.t("purchase.username_taken", map[string]interface{}{"username": conflict.Value})), nil
	default:
		return outcome{}, err
	}
}

func (e *Engine) knownCustomer(ctx context.Context, phone string) (bool, string, error) {
	customer, err := e.store.GetCustomer(ctx, phone)
	if err != nil {
		return false, "", apperrors.Persistence("get customer", err)
	}
	if customer != nil {
		return true, customer.Name, nil
	}
	owned, err := e.store.ListAccounts(ctx, accounts.ListCriteria{Phone: &phone, Limit: 1})
	if err != nil {
		return false, "", apperrors.Persistence("list accounts", err)
	}
	return len(owned) > 0, "", nil
}

func (e *Engine) ownedAccounts(ctx context.Context, phone string) ([]*accounts.Account, error) {
	owned, err := e.store.ListAccounts(ctx, accounts.ListCriteria{Phone: &phone, Provisioned: true})
	if err != nil {
		return nil, apperrors.Persistence("list accounts", err)
	}
	return owned, nil
}

func (e *Engine) greeting(ctx context.Context, name string) (string, error) {
	values, err := e.values(ctx)
	if err != nil {
		return "", err
	}
	suffix := ""
	if name != "" {
		suffix = ", " + name
	}
	return e.t("menu.greeting", map[string]interface{}{
		"name":            suffix,
		"price_per_month": FormatMoney(values.PerMonth),
	}), nil
}

func (e *Engine) values(ctx context.Context) (settings.Values, error) {
	v, err := e.settings.Values(ctx)
	if err != nil {
		return settings.Values{}, apperrors.Persistence("read settings", err)
	}
	return v, nil
}

func (e *Engine) summaryParams(username string, connections, months int, price float64) map[string]interface{} {
	label := e.t("duration.months", nil)
	if months == 1 {
		label = e.t("duration.month", nil)
	}
	return map[string]interface{}{
		"username":     username,
		"connections":  connections,
		"months":       months,
		"months_label": label,
		"price":        FormatMoney(price),
	}
}

func (e *Engine) statusLabel(status accounts.Status) string {
	if status == accounts.StatusActive {
		return e.t("inquire.active", nil)
	}
	return e.t("inquire.expired", nil)
}

func (e *Engine) formatDate(acc *accounts.Account) string {
	if acc.ExpiresAt == nil {
		return e.t("inquire.unknown", nil)
	}
	return acc.ExpiresAt.In(provisioning.PanelLocation).Format("02/01/2006")
}

func (e *Engine) to(phone string, c conversations.Context, step conversations.Step, scratch conversations.Scratch, replies ...string) outcome {
	return outcome{
		next:    conversations.State{Phone: phone, Context: c, Step: step, Scratch: scratch},
		replies: replies,
	}
}

func (e *Engine) stay(state conversations.State, replies ...string) outcome {
	return outcome{next: state, replies: replies}
}

func (e *Engine) errorMenu(phone, reason string) outcome {
	return e.to(phone, conversations.ContextErrorMenu, conversations.StepChooseOption, conversations.Empty{},
		e.t("error_menu.prompt", map[string]interface{}{"reason": reason}))
}

// failTemporarily tells the user to retry and returns err. The stored state is untouched.
func (e *Engine) failTemporarily(ctx context.Context, phone string, err error) error {
	e.logger.Error("Failed to handle message", "phone", phone, "error", err)

	contact := ""
	if values, verr := e.settings.Values(ctx); verr == nil {
		contact = values.SupportContact
	}
	if sendErr := e.send(ctx, phone, e.t("errors.temporary", map[string]interface{}{"contact": contact})); sendErr != nil {
		e.logger.Error("Failed to send retry notice", "phone", phone, "error", sendErr)
	}
	return err
}

func (e *Engine) send(ctx context.Context, phone string, replies ...string) error {
	for _, reply := range replies {
		if err := e.messenger.SendMessage(ctx, phone, reply); err != nil {
			return fmt.Errorf("send message to %s: %w", phone, err)
		}
	}
	return nil
}

func (e *Engine) t(key string, params map[string]interface{}) string {
	return e.localizer.Get(lang, key, params)
}
