package authn

import (
	"context"
	"fmt"
	"runtime/debug"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/rs/zerolog"
)

// AuditSink receives unexpected failures caught at the authentication boundary
type AuditSink interface {
	ReportException(ctx context.Context, err error, fields map[string]any)
}

// LogAuditSink reports exceptions through zerolog
type LogAuditSink struct {
	logger zerolog.Logger
}

var _ AuditSink = (*LogAuditSink)(nil)

func NewLogAuditSink(logger zerolog.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger}
}

func (s *LogAuditSink) ReportException(_ context.Context, err error, fields map[string]any) {
	s.logger.Error().Bool("audit", true).Err(err).Fields(fields).Msg("authentication exception")
}

// unexpected reports err and converts it into a failed outcome
func (o *options) unexpected(ctx context.Context, h headers, req *Request, scheme string, err error) Outcome {
	o.audit.ReportException(ctx, err, map[string]any{"scheme": scheme})
	return h.fail(req, fmt.Errorf("%w: %v", internalerrors.ErrInternal, err))
}

// guard must be deferred directly by Authenticate
func (o *options) guard(ctx context.Context, h headers, req *Request, scheme string, out *Outcome) {
	if r := recover(); r != nil {
		o.audit.ReportException(ctx, fmt.Errorf("%s authentication panicked: %v", scheme, r), map[string]any{
			"scheme": scheme,
			"stack":  string(debug.Stack()),
		})
		*out = h.fail(req, internalerrors.ErrInternal)
	}
}
