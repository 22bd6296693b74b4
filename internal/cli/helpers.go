package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/attic/internal/logger"
	"github.com/mesh-intelligence/attic/pkg/attic"
	"github.com/mesh-intelligence/attic/pkg/types"
)

var errUsage = errors.New("usage")

// openArchiver builds the logger and the Archiver for s. The caller must
// Close the Archiver.
func openArchiver(s *settings) (*attic.Archiver, error) {
	log, err := logger.New(s.config.Log)
	if err != nil {
		return nil, err
	}
	a, err := attic.Open(s.config,
		attic.WithLogger(log),
		attic.WithObserver(eventLogger{log: log}))
	if err != nil {
		return nil, fmt.Errorf("open attic: %w", err)
	}
	return a, nil
}

// eventLogger reports every notification at debug level.
type eventLogger struct {
	log *zap.Logger
}

func (l eventLogger) Notify(_ context.Context, ev types.Event) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.String("entity", ev.Record.EntityType()),
		zap.Any("key", ev.Record.PrimaryKey()),
		zap.String("using", ev.Using),
		zap.String("operation_id", ev.OperationID),
	}
	if ev.Summary != nil {
		fields = append(fields, zap.Int64("rows", ev.Summary.Total()))
	}
	l.log.Debug("event", fields...)
}

// callOptions turns global flags into per-call options.
func callOptions(keepParents bool) []attic.CallOption {
	var opts []attic.CallOption
	if flags.using != "" {
		opts = append(opts, attic.Using(flags.using))
	}
	if keepParents {
		opts = append(opts, attic.KeepParents())
	}
	return opts
}

// parseKey converts a command-line key to the Go type the entity's key
// column holds: integers for INTEGER-like key types, strings otherwise.
func parseKey(e *types.EntityType, raw string) (any, error) {
	if strings.Contains(strings.ToUpper(e.KeySQLType()), "INT") {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q of %s is not an integer", errUsage, raw, e.Name)
		}
		return n, nil
	}
	return raw, nil
}

// loadRef resolves entity and key arguments to the stored row.
func loadRef(ctx context.Context, a *attic.Archiver, entity, rawKey string) (*types.Ref, error) {
	e, ok := a.Schema().Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownEntity, entity)
	}
	key, err := parseKey(e, rawKey)
	if err != nil {
		return nil, err
	}
	return a.Get(ctx, entity, key, callOptions(false)...)
}

type summaryOutput struct {
	Operation  string           `json:"operation"`
	Entity     string           `json:"entity"`
	Key        any              `json:"key"`
	ArchivedAt *time.Time       `json:"archived_at,omitempty"`
	Deleted    map[string]int64 `json:"deleted"`
	Updated    map[string]int64 `json:"updated"`
}

func printSummary(w io.Writer, op string, ref *types.Ref, sum types.Summary) error {
	if flags.jsonMode {
		return writeJSON(w, summaryOutput{
			Operation:  op,
			Entity:     ref.Entity,
			Key:        ref.Key,
			ArchivedAt: ref.ArchivedAt,
			Deleted:    sum.Deleted,
			Updated:    sum.Updated,
		})
	}
	fmt.Fprintf(w, "%s %s %v: %d row(s)\n", op, ref.Entity, ref.Key, sum.Total())
	printCounts(w, "deleted", sum.Deleted)
	printCounts(w, "updated", sum.Updated)
	return nil
}

func printCounts(w io.Writer, label string, counts map[string]int64) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s: %d\n", label, name, counts[name])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
