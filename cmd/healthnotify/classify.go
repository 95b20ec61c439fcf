package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/healthnotify/internal/model"
	"github.com/dukerupert/healthnotify/internal/store"
)

func newClassifyCmd(a *app) *cobra.Command {
	var asJSON, actionOnly bool

	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify raw notification records from a JSON array or NDJSON stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			raws, err := readRaw(in)
			if err != nil {
				return err
			}

			st := store.NewNotificationStore(newClassifier(a))
			st.Seed(raws)

			var preds []store.Predicate
			if actionOnly {
				preds = append(preds, store.ActionRequired())
			}
			for n := range st.Filter(preds...) {
				if err := writeNotification(cmd.OutOrStdout(), n, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print classified notifications as JSON lines")
	cmd.Flags().BoolVar(&actionOnly, "action-required", false, "print only notifications that require action")
	return cmd
}

// readRaw accepts a JSON array or a stream of JSON objects.
func readRaw(r io.Reader) ([]model.RawNotification, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var raws []model.RawNotification
		if err := dec.Decode(&raws); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
		return raws, nil
	}

	var raws []model.RawNotification
	for {
		var raw model.RawNotification
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return raws, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode notification %d: %w", len(raws)+1, err)
		}
		raws = append(raws, raw)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
