// Package telegram delivers change alerts and the daily digest via the bot
// API. Delivery is best effort; callers log and continue on failure.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string
}

type Notifier struct {
	hc  *http.Client
	cfg Config
}

func New(cfg Config) *Notifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Notifier{
		hc:  &http.Client{Timeout: 10 * time.Second},
		cfg: cfg,
	}
}

func (n *Notifier) NotifyChange(ctx context.Context, kind reservation.ChangeKind, s reservation.ChangeSummary) error {
	prefix := "New order"
	if kind == reservation.ChangeUpdated {
		prefix = "Order updated"
	}
	return n.send(ctx, prefix+"\n"+summaryLine(s))
}

func (n *Notifier) NotifyDigest(ctx context.Context, rows []reservation.Upcoming) error {
	if len(rows) == 0 {
		return nil
	}
	return n.send(ctx, DigestText(rows))
}

// DigestText renders the one-message digest body for today's and tomorrow's
// reservations.
func DigestText(rows []reservation.Upcoming) string {
	var b strings.Builder
	b.WriteString("Reservations for today and tomorrow\n")
	for _, r := range rows {
		b.WriteString(summaryLine(reservation.ChangeSummary{
			ReservationNumber: r.ReservationNumber,
			OrderLimit:        r.OrderLimit,
			FacultyName:       r.FacultyName,
			Date:              r.Date.Format("02/01/2006"),
			ReservedTable:     r.ReservedTable,
		}))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func summaryLine(s reservation.ChangeSummary) string {
	tableFlag := ""
	if s.ReservedTable {
		tableFlag = "  |  TABLE SERVICE"
	}
	return fmt.Sprintf("#%d  |  %.2f ILS  |  %s  |  %s%s",
		s.ReservationNumber, s.OrderLimit, s.FacultyName, s.Date, tableFlag)
}

func (n *Notifier) send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", n.cfg.ChatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.BaseURL, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Description != "" {
			return fmt.Errorf("telegram send failed: %s (status=%d)", apiErr.Description, resp.StatusCode)
		}
		return fmt.Errorf("telegram send failed (status=%d)", resp.StatusCode)
	}
	return nil
}
