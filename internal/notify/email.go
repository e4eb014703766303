package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"duetto/internal/metrics"
	"duetto/internal/models"
)

// Email delivers alerts as multipart HTML mail over SMTP. Sends go
// through a bounded queue and a single worker so a slow mail server
// never blocks the pipeline.
type Email struct {
	from   string
	to     []string
	dialer *gomail.Dialer

	send  func(alert models.Alert) error
	queue chan models.Alert
	done  chan struct{}
	once  sync.Once
}

// NewEmail returns a notifier mailing each alert to the to list.
func NewEmail(host string, port int, username, password, from string, to []string) *Email {
	e := &Email{
		from:   from,
		to:     to,
		dialer: gomail.NewDialer(host, port, username, password),
		queue:  make(chan models.Alert, 64),
		done:   make(chan struct{}),
	}
	e.send = e.mail
	go e.worker()
	return e
}

func (e *Email) Name() string { return "email" }

// Send enqueues the alert for the worker. Only a full queue is an
// error; delivery failures are logged by the worker.
func (e *Email) Send(ctx context.Context, alert models.Alert) error {
	select {
	case e.queue <- alert:
		return nil
	default:
		return errors.New("email queue full")
	}
}

func (e *Email) worker() {
	defer close(e.done)
	for alert := range e.queue {
		if err := e.send(alert); err != nil {
			log.Printf("ERROR: email notifier failed for alert %s: %v", alert.ID, err)
			metrics.NotifyFailures.WithLabelValues(e.Name()).Inc()
			continue
		}
		log.Printf("Sent alert email: %s", EmailSubject(alert))
	}
}

func (e *Email) mail(alert models.Alert) error {
	html, err := RenderEmailHTML(alert)
	if err != nil {
		return errors.Wrap(err, "render email")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", EmailSubject(alert))
	m.SetBody("text/plain", fmt.Sprintf("%s\n\n%s\n\n%s", alert.Title, alert.Summary, alert.URL))
	m.AddAlternative("text/html", html)
	return e.dialer.DialAndSend(m)
}

// Close stops accepting alerts and waits briefly for the worker to
// drain what is already queued.
func (e *Email) Close() error {
	e.once.Do(func() { close(e.queue) })
	select {
	case <-e.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("email worker did not drain in time")
	}
}
