// Package worker orchestrates the fetch-and-deliver pipeline for each
// configured account.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/popsync/popsync/internal/config"
	"github.com/popsync/popsync/internal/deliver"
	"github.com/popsync/popsync/internal/metrics"
	"github.com/popsync/popsync/internal/pop3"
	"github.com/popsync/popsync/internal/state"
)

// Worker drains all configured POP3 accounts into the configured
// delivery backend.
type Worker struct {
	cfg       *config.Config
	tracker   *state.Tracker
	deliverer deliver.Deliverer
	logger    *slog.Logger
}

// New creates a Worker with the delivery backend the config selects.
func New(cfg *config.Config, tracker *state.Tracker, logger *slog.Logger) *Worker {
	var d deliver.Deliverer
	if cfg.Delivery.SMTP != nil {
		s := cfg.Delivery.SMTP
		d = deliver.NewSMTPForwarder(s.Host, s.Port, s.Username, s.Password, s.To)
	} else {
		d = deliver.NewMaildir(cfg.Delivery.Maildir)
	}

	return &Worker{
		cfg:       cfg,
		tracker:   tracker,
		deliverer: d,
		logger:    logger,
	}
}

// Run executes one full cycle: fetch from every account and deliver.
func (w *Worker) Run() error {
	start := time.Now()
	w.logger.Info("starting fetch cycle", "accounts", len(w.cfg.Accounts))

	var totalDelivered, totalErrors int

	for i, acct := range w.cfg.Accounts {
		delivered, errCount := w.processAccount(i, acct)
		totalDelivered += delivered
		totalErrors += errCount
	}

	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	w.logger.Info("fetch cycle complete",
		"total_delivered", totalDelivered,
		"total_errors", totalErrors,
		"duration", time.Since(start),
	)

	for account, count := range w.tracker.Stats() {
		w.logger.Debug("state", "account", account, "tracked_uids", count)
	}

	if totalErrors > 0 {
		return fmt.Errorf("completed with %d errors", totalErrors)
	}
	return nil
}

// processAccount drains a single account.
func (w *Worker) processAccount(index int, acct config.Account) (delivered, errCount int) {
	label := acct.Label()
	log := w.logger.With("account", label, "index", index)
	log.Info("processing account")

	client, err := pop3.Dial(acct.Host, acct.Port, pop3.Options{
		TLS:       acct.TLS,
		TLSVerify: acct.TLSVerify,
		Timeout:   acct.Timeout(),
	})
	if err != nil {
		log.Error("failed to connect", "error", err)
		metrics.AccountErrors.WithLabelValues(label).Inc()
		return 0, 1
	}
	defer func() {
		// Quit commits any deletions and releases the transport. After a
		// broken conversation the close still happens; only complain when
		// something unexpected went wrong.
		if err := client.Quit(); err != nil && !errors.Is(err, pop3.ErrState) {
			log.Warn("quit failed", "error", err)
		}
	}()

	if err := client.Login(acct.User, acct.Password); err != nil {
		log.Error("login failed", "error", err)
		metrics.AccountErrors.WithLabelValues(label).Inc()
		return 0, 1
	}
	log.Debug("logged in", "banner", client.Banner())

	count, size, err := client.Stat()
	if err != nil {
		log.Error("STAT failed", "error", err)
		metrics.AccountErrors.WithLabelValues(label).Inc()
		return 0, 1
	}
	log.Info("maildrop status", "messages", count, "octets", size)

	uidMap, err := client.UIDList()
	if err != nil {
		log.Error("UIDL failed", "error", err)
		metrics.AccountErrors.WithLabelValues(label).Inc()
		return 0, 1
	}

	// Sort message numbers for deterministic processing.
	msgNums := make([]int, 0, len(uidMap))
	for num := range uidMap {
		msgNums = append(msgNums, num)
	}
	sort.Ints(msgNums)

	for _, msgNum := range msgNums {
		uid := uidMap[msgNum]

		if w.tracker.IsDelivered(label, uid) {
			log.Debug("skipping already-delivered message", "msg_num", msgNum, "uid", uid)
			continue
		}

		log.Info("fetching message", "msg_num", msgNum, "uid", uid)

		raw, err := client.Retrieve(msgNum)
		if err != nil {
			log.Error("retrieve failed", "msg_num", msgNum, "uid", uid, "error", err)
			errCount++
			metrics.AccountErrors.WithLabelValues(label).Inc()
			continue
		}

		if err := w.deliverer.Deliver(label, raw); err != nil {
			log.Error("delivery failed", "msg_num", msgNum, "uid", uid, "error", err)
			errCount++
			metrics.AccountErrors.WithLabelValues(label).Inc()
			continue
		}

		if err := w.tracker.MarkDelivered(label, uid); err != nil {
			log.Error("state update failed", "msg_num", msgNum, "uid", uid, "error", err)
			errCount++
			metrics.AccountErrors.WithLabelValues(label).Inc()
			continue
		}

		if !acct.Keep {
			// Actual removal happens on QUIT.
			if err := client.Dele(msgNum); err != nil {
				log.Error("delete failed", "msg_num", msgNum, "uid", uid, "error", err)
				errCount++
				metrics.AccountErrors.WithLabelValues(label).Inc()
				continue
			}
		}

		delivered++
		metrics.MessagesDelivered.WithLabelValues(label).Inc()
		log.Info("message delivered", "msg_num", msgNum, "uid", uid)
	}

	if acct.Keep {
		// Drop state for messages the server no longer has.
		current := make(map[string]bool, len(uidMap))
		for _, uid := range uidMap {
			current[uid] = true
		}
		if err := w.tracker.Prune(label, current); err != nil {
			log.Warn("state prune failed", "error", err)
		}
	}

	log.Info("account processing complete", "delivered", delivered, "errors", errCount)
	return delivered, errCount
}
