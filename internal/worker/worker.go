package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuidarmed/m/domain"
	"cuidarmed/m/internal/notify"
	"cuidarmed/m/internal/store"
)

// Expiry notices are sent once a medication's expiry date enters this window.
const expiryLookaheadDays = 30

// Worker performs one tick of automatic stock consumption and threshold
// notification per invocation. It holds no state between ticks and provides
// no mutual exclusion: overlapping triggers may double-decrement, which is an
// accepted limitation of the single-operator deployment.
type Worker struct {
	store    *store.Store
	notifier notify.Notifier
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

// New constructs a Worker. The location fixes the reference time zone used
// for schedule matching regardless of where the server runs.
func New(st *store.Store, notifier notify.Notifier, log *slog.Logger, loc *time.Location) *Worker {
	return &Worker{store: st, notifier: notifier, log: log, loc: loc, now: time.Now}
}

// RunTick executes one tick: decrement medications scheduled for the current
// minute, then send any pending low-stock and expiry notices. Errors are
// logged and never propagated; the triggering request has already been
// answered by the time this runs.
func (w *Worker) RunTick(ctx context.Context) {
	now := w.now().In(w.loc)
	slot := now.Format("15:04")
	w.log.Info("worker tick started", "slot", slot)

	due, err := w.store.DueAt(ctx, slot)
	if err != nil {
		w.log.Error("unable to load scheduled medications", "err", err)
		return
	}
	for _, med := range due {
		decremented, err := w.store.DecrementStock(ctx, med.ID)
		if err != nil {
			w.log.Error("unable to decrement stock", "medication", med.Name, "err", err)
			continue
		}
		if !decremented {
			continue
		}
		if err := w.store.AddMovement(ctx, med.Name, -1, domain.MovementAutomatic); err != nil {
			w.log.Error("unable to log automatic movement", "medication", med.Name, "err", err)
		}
	}
	if len(due) > 0 {
		w.log.Info("automatic discount applied", "count", len(due))
	}

	// Threshold scans run after the decrement pass, so a medication that
	// crosses a threshold during this tick is notified within this tick.
	w.notifyLowStock(ctx)
	w.notifyExpiry(ctx, now)

	w.log.Info("worker tick finished")
}

func (w *Worker) notifyLowStock(ctx context.Context) {
	meds, err := w.store.LowStockUnnotified(ctx)
	if err != nil {
		w.log.Error("unable to load low-stock medications", "err", err)
		return
	}
	for _, med := range meds {
		text := fmt.Sprintf(
			"⚠️ <b>Low stock:</b> %s%s has %d units left (minimum %d). Time to restock.",
			med.Name, doseSuffix(med.Dose), med.CurrentStock, med.MinStock)
		if err := w.notifier.Send(ctx, text); err != nil {
			// Flag stays false so the next tick retries.
			w.log.Error("low-stock notification failed", "medication", med.Name, "err", err)
			continue
		}
		if err := w.store.SetLowStockNotified(ctx, med.ID, true); err != nil {
			w.log.Error("unable to persist low-stock flag", "medication", med.Name, "err", err)
		}
	}
}

func (w *Worker) notifyExpiry(ctx context.Context, now time.Time) {
	boundary := now.AddDate(0, 0, expiryLookaheadDays).Format("2006-01-02")
	meds, err := w.store.ExpiringUnnotified(ctx, boundary)
	if err != nil {
		w.log.Error("unable to load expiring medications", "err", err)
		return
	}
	for _, med := range meds {
		text := fmt.Sprintf(
			"⏰ <b>Expiry notice:</b> %s%s expires on %s (%d units in stock).",
			med.Name, doseSuffix(med.Dose), formatExpiry(med.ExpiryDate), med.CurrentStock)
		if err := w.notifier.Send(ctx, text); err != nil {
			w.log.Error("expiry notification failed", "medication", med.Name, "err", err)
			continue
		}
		if err := w.store.SetExpiryNotified(ctx, med.ID, true); err != nil {
			w.log.Error("unable to persist expiry flag", "medication", med.Name, "err", err)
		}
	}
}

// SendDailyReport compiles the inventory summary and delivers it through the
// notifier as one message. Like RunTick it only logs failures.
func (w *Worker) SendDailyReport(ctx context.Context) {
	now := w.now().In(w.loc)
	meds, err := w.store.List(ctx)
	if err != nil {
		w.log.Error("unable to load medications for daily report", "err", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Daily inventory report</b> — %s\n", now.Format("02/01/2006"))
	if len(meds) == 0 {
		b.WriteString("No medications registered.")
	}
	expiryBoundary := now.AddDate(0, 0, expiryLookaheadDays).Format("2006-01-02")
	for _, med := range meds {
		fmt.Fprintf(&b, "\n• %s%s: %d units, ~%d days left",
			med.Name, doseSuffix(med.Dose), med.CurrentStock, med.DaysRemaining())
		if med.CurrentStock <= med.MinStock {
			b.WriteString(" ⚠️ LOW")
		}
		if med.ExpiryDate != nil && *med.ExpiryDate <= expiryBoundary {
			fmt.Fprintf(&b, " ⏰ expires %s", formatExpiry(med.ExpiryDate))
		}
	}

	if err := w.notifier.Send(ctx, b.String()); err != nil {
		w.log.Error("daily report delivery failed", "err", err)
		return
	}
	w.log.Info("daily report sent", "medications", len(meds))
}

func doseSuffix(dose string) string {
	if dose == "" {
		return ""
	}
	return " (" + dose + ")"
}

// formatExpiry renders a stored "YYYY-MM-DD" date as DD/MM/YYYY for display.
func formatExpiry(date *string) string {
	if date == nil {
		return ""
	}
	t, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return *date
	}
	return t.Format("02/01/2006")
}
