// Package query composes window resolution, identity expansion, storage reads
// and context assembly into the archive's public read operations.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
	"github.com/krishhrana/whatsapp-mcp/internal/timewindow"
)

// Defaults applied by callers that leave a parameter unset.
const (
	DefaultLimit         = 20
	DefaultContextBefore = 1
	DefaultContextAfter  = 1
	// DefaultAround is the neighbour count of a standalone context lookup.
	DefaultAround = 5
)

// Service answers archive queries. Each call checks out one connection and
// releases it before returning.
type Service struct {
	db      *store.DB
	windows *timewindow.Resolver
	log     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the instant relative windows resolve against.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.windows = timewindow.NewResolver(now) }
}

// New creates a Service over db.
func New(db *store.DB, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{db: db, windows: timewindow.NewResolver(nil), log: log.Named("query")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Page is a zero-indexed page of Limit rows.
type Page struct {
	Limit int
	Page  int
}

func (p Page) validate() error {
	if p.Page < 0 {
		return apperr.Invalid("page", "must be greater than or equal to 0")
	}
	if p.Limit <= 0 {
		return apperr.Invalid("limit", "must be greater than 0")
	}
	return nil
}

func (p Page) offset() int { return p.Page * p.Limit }

// ContextOptions asks listings to expand each hit into its surroundings.
type ContextOptions struct {
	Include bool
	Before  int
	After   int
}

func (o ContextOptions) validate() error {
	if !o.Include {
		return nil
	}
	if o.Before < 0 {
		return apperr.Invalid("context_before", "must be greater than or equal to 0")
	}
	if o.After < 0 {
		return apperr.Invalid("context_after", "must be greater than or equal to 0")
	}
	return nil
}

// withReader runs fn on a dedicated connection.
func (s *Service) withReader(ctx context.Context, fn func(r *store.Reader) error) error {
	r, err := s.db.Reader(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return fn(r)
}

// degrade logs a failed bulk read. Listings answer empty rather than fail;
// argument errors still surface.
func (s *Service) degrade(op string, err error) error {
	if apperr.IsInvalid(err) {
		return err
	}
	s.log.Error("read failed, returning empty result", zap.String("op", op), zap.Error(err))
	return nil
}

// lookupErr maps a failed point lookup to the error taxonomy.
func lookupErr(op string, err error) error {
	if apperr.IsInvalid(err) || apperr.IsNotFound(err) || errors.Is(err, apperr.ErrStorageUnavailable) {
		return err
	}
	return apperr.Unavailable(op, err)
}

func requireChatJID(raw string) (string, error) {
	jid := strings.TrimSpace(raw)
	if jid == "" {
		return "", apperr.Invalid("chat_jid", "must be a non-empty string")
	}
	return jid, nil
}
