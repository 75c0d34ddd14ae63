// Command deleteindex removes the chunk index after an interactive
// confirmation.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"docchat/internal/config"
	"docchat/internal/logger"
	"docchat/internal/search"
)

const confirmWord = "DELETE"

type indexDeleter interface {
	DeleteIndex(ctx context.Context, name string) error
}

// run asks for confirmation on in and deletes index only when the reply is
// exactly the confirmation word.
func run(ctx context.Context, d indexDeleter, index string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "WARNING: This will delete the index %q. Type '%s' to confirm: ", index, confirmWord)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimRight(line, "\r\n") != confirmWord {
		fmt.Fprintln(out, "Deletion cancelled.")
		return nil
	}

	if err := d.DeleteIndex(ctx, index); err != nil {
		return err
	}
	fmt.Fprintf(out, "Index %q deleted.\n", index)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, "text", os.Stderr)

	client, err := search.NewClient(search.Config{
		Addresses:   cfg.Search.Hosts,
		Username:    cfg.Search.User,
		Password:    cfg.Search.Password,
		VerifyCerts: cfg.Search.VerifyCerts,
		Index:       cfg.Search.Index,
	}, log)
	if err != nil {
		log.Error("failed to create search client", "err", err)
		os.Exit(1)
	}
	log.Info("connected to elasticsearch", "hosts", strings.Join(cfg.Search.Hosts, ","))

	if err := run(context.Background(), client, client.Index(), os.Stdin, os.Stdout); err != nil {
		log.Error("error deleting index", "err", err)
		os.Exit(1)
	}
}
