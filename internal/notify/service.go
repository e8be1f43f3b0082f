package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/domain/order"
)

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Directory resolves a customer id to a notification address. The customer
// master lives outside this service; deployments plug in a real lookup and
// tests use the static one.
type Directory interface {
	AddressFor(ctx context.Context, customerID uuid.UUID) (string, bool, error)
}

// Deduper remembers processed event ids so redelivered envelopes are
// dropped. The relay publishes at least once; this is the other half of
// that contract.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Service renders and sends the customer-facing order notifications.
type Service struct {
	directory Directory
	sender    Sender
	logger    *logrus.Logger
}

func NewService(directory Directory, sender Sender, logger *logrus.Logger) *Service {
	return &Service{
		directory: directory,
		sender:    sender,
		logger:    logger,
	}
}

// SendOrderConfirmed mails the confirmation with the priced line summary.
func (s *Service) SendOrderConfirmed(ctx context.Context, e order.OrderConfirmed) error {
	return s.send(ctx, e.CustomerID, confirmedSubject(e.OrderID.String()), buildConfirmedBody(e))
}

// SendOrderReady tells the customer the order is packed and awaiting the
// carrier.
func (s *Service) SendOrderReady(ctx context.Context, e order.OrderReady) error {
	return s.send(ctx, e.CustomerID, readySubject(e.OrderID.String()), buildReadyBody(e))
}

// SendOrderShipped mails the shipping notice.
func (s *Service) SendOrderShipped(ctx context.Context, e order.OrderShipped) error {
	return s.send(ctx, e.CustomerID, shippedSubject(e.OrderID.String()), buildShippedBody(e))
}

// send resolves the address and delivers. A customer without an address is
// skipped with a warning rather than failed: the event is already consumed
// and retrying cannot make an address appear.
func (s *Service) send(ctx context.Context, customerID uuid.UUID, subject, body string) error {
	to, ok, err := s.directory.AddressFor(ctx, customerID)
	if err != nil {
		return fmt.Errorf("resolve address for customer %s: %w", customerID, err)
	}
	if !ok {
		s.logger.WithField("customer_id", customerID).Warn("[Notifier] no address for customer, skipping")
		return nil
	}
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	s.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("[Notifier] notification sent")
	return nil
}

// SMTPSender delivers notifications as HTML mail.
type SMTPSender struct {
	host string
	port string
	from string
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

// StaticDirectory is a fixed customer-to-address map.
type StaticDirectory struct {
	mu        sync.RWMutex
	addresses map[uuid.UUID]string
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{addresses: make(map[uuid.UUID]string)}
}

func (d *StaticDirectory) SetAddress(customerID uuid.UUID, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses[customerID] = address
}

func (d *StaticDirectory) AddressFor(ctx context.Context, customerID uuid.UUID) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.addresses[customerID]
	return addr, ok, nil
}

// MemoryDeduper keeps seen event ids in process memory. Fine for a single
// notifier instance; multi-instance deployments use the Redis-backed one.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[uuid.UUID]struct{})}
}

func (d *MemoryDeduper) FirstSeen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}
