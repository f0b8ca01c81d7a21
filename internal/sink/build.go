package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// Build creates the sinks named in cfg.Sinks, in order. out receives the
// stdout sink's lines; st backs the store sink and may be nil when that
// sink is not configured.
func Build(ctx context.Context, cfg *model.Config, out io.Writer, st RecordStore) (*Multi, error) {
	var sinks []Sink
	closeAll := func() { _ = NewMulti(sinks...).Close() }

	for _, name := range cfg.Sinks {
		switch name {
		case model.SinkStdout:
			sinks = append(sinks, NewWriter(out))
		case model.SinkStore:
			if st == nil {
				closeAll()
				return nil, fmt.Errorf("store sink requires an open store")
			}
			sinks = append(sinks, NewStore(st))
		case model.SinkRedis:
			r, err := NewRedis(ctx, RedisConfig{
				Addr:         cfg.Redis.Addr,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				StreamPrefix: cfg.Redis.StreamPrefix,
				MaxLen:       cfg.Redis.MaxLen,
			})
			if err != nil {
				closeAll()
				return nil, err
			}
			sinks = append(sinks, r)
		case model.SinkIndex:
			sinks = append(sinks, NewIndex(IndexConfig{
				URL:      cfg.Index.URL,
				User:     cfg.Index.User,
				Password: cfg.Index.Password,
				Prefix:   cfg.Index.Prefix,
				Timeout:  cfg.APITimeout(),
			}))
		default:
			closeAll()
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}

	return NewMulti(sinks...), nil
}
