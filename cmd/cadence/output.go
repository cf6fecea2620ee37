package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

// withApp builds the app, runs fn, waits for background work and prints the result as JSON.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) (any, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	result, runErr := fn(ctx, a)
	closeErr := a.close(context.Background())
	if runErr != nil {
		return errors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}

	return writeJSON(cmd.OutOrStdout(), result)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
