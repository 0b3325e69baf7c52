package docstore

import "context"

// Noop is used when no document database is configured.
type Noop struct{}

func (Noop) Set(context.Context, string, map[string]any) error { return ErrUnavailable }

func (Noop) Get(context.Context, string) (map[string]any, error) { return nil, ErrUnavailable }

func (Noop) List(context.Context, string) ([]Document, error) { return nil, ErrUnavailable }

func (Noop) Close() error { return nil }
