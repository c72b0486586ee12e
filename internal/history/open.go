package history

import (
	"context"
	"errors"
	"fmt"
)

// Config selects and configures sinks. Sinks lists names in save order.
type Config struct {
	Sinks        []string
	AppSheet     RowAdder
	SQLitePath   string
	PostgresDSN  string
	KafkaBrokers []string
	KafkaTopic   string
}

// Open builds the configured sinks. The returned Reader is the first sink that supports
// reads, or nil. On error every sink already opened is closed.
func Open(ctx context.Context, cfg Config) ([]Sink, Reader, error) {
	var sinks []Sink
	var reader Reader
	fail := func(err error) ([]Sink, Reader, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, nil, err
	}

	for _, name := range cfg.Sinks {
		var sink Sink
		switch name {
		case "appsheet":
			if cfg.AppSheet == nil {
				return fail(errors.New("appsheet sink requires a client"))
			}
			sink = NewAppSheetSink(cfg.AppSheet)
		case "sqlite":
			s, err := NewSQLiteStore(cfg.SQLitePath)
			if err != nil {
				return fail(err)
			}
			sink = s
		case "postgres":
			s, err := NewPostgresStore(ctx, cfg.PostgresDSN)
			if err != nil {
				return fail(err)
			}
			sink = s
		case "kafka":
			if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
				return fail(errors.New("kafka sink requires brokers and topic"))
			}
			sink = NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		default:
			return fail(fmt.Errorf("%w: %q", ErrUnknownSink, name))
		}
		sinks = append(sinks, sink)
		if r, ok := sink.(Reader); ok && reader == nil {
			reader = r
		}
	}
	return sinks, reader, nil
}
